package commands

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/logvault/internal/client"
	cryptoDomain "github.com/allisson/logvault/internal/crypto/domain"
	kekDomain "github.com/allisson/logvault/internal/kek/domain"
	"github.com/allisson/logvault/internal/logmanager"
	logsDomain "github.com/allisson/logvault/internal/logs/domain"
)

type fakeSplitter struct {
	shares []cryptoDomain.Share
	err    error
}

func (f *fakeSplitter) SplitMasterSecret(total, threshold int) ([]cryptoDomain.Share, error) {
	return f.shares, f.err
}

type fakeKEKManager struct {
	versions    []*kekDomain.KEKVersion
	listErr     error
	created     *kekDomain.RotationResult
	createErr   error
	grant       *kekDomain.UserKEKGrant
	grantErr    error
	provisioned uuid.UUID
}

func (f *fakeKEKManager) GetKEKVersions(ctx context.Context) ([]*kekDomain.KEKVersion, error) {
	return f.versions, f.listErr
}

func (f *fakeKEKManager) CreateKEKVersion(ctx context.Context, reason string) (*kekDomain.RotationResult, error) {
	return f.created, f.createErr
}

func (f *fakeKEKManager) ProvisionKEKForUser(
	ctx context.Context,
	userID string,
	versionID uuid.UUID,
) (*kekDomain.UserKEKGrant, error) {
	f.provisioned = versionID
	return f.grant, f.grantErr
}

type fakeRotator struct {
	outcome      *client.RotationOutcome
	err          error
	removedUsers []string
}

func (f *fakeRotator) RotateKEK(ctx context.Context, reason string, removedUsers []string) (*client.RotationOutcome, error) {
	f.removedUsers = removedUsers
	return f.outcome, f.err
}

func (f *fakeRotator) ResumeRotation(ctx context.Context) (*client.RotationOutcome, error) {
	return f.outcome, f.err
}

type fakeCollector struct {
	session   *kekDomain.RecoverySession
	getErr    error
	collected []kekDomain.SealedShare
}

func (f *fakeCollector) GetRecoverySession(
	ctx context.Context,
	tenantID string,
	sessionID uuid.UUID,
) (*kekDomain.RecoverySession, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.session, nil
}

func (f *fakeCollector) CollectShare(
	ctx context.Context,
	tenantID string,
	sessionID uuid.UUID,
	share kekDomain.SealedShare,
) (*kekDomain.RecoverySession, error) {
	f.collected = append(f.collected, share)
	f.session.Shares = append(f.session.Shares, share)
	return f.session, nil
}

type appendCall struct {
	logName   string
	data      map[string]any
	timestamp time.Time
}

type fakeLogClient struct {
	appended  []appendCall
	appendErr error
	result    *logmanager.SearchResult
	searchErr error
	request   logmanager.SearchRequest
	logs      []logmanager.LogInfo
}

func (f *fakeLogClient) AppendEntry(
	ctx context.Context,
	logName string,
	data map[string]any,
	timestamp time.Time,
) (*logsDomain.EncryptedLogEntry, error) {
	if f.appendErr != nil {
		return nil, f.appendErr
	}
	f.appended = append(f.appended, appendCall{logName: logName, data: data, timestamp: timestamp})
	return &logsDomain.EncryptedLogEntry{ID: uuid.Must(uuid.NewV7()), Timestamp: timestamp}, nil
}

func (f *fakeLogClient) Search(ctx context.Context, req logmanager.SearchRequest) (*logmanager.SearchResult, error) {
	f.request = req
	return f.result, f.searchErr
}

func (f *fakeLogClient) ListLogs(ctx context.Context) ([]logmanager.LogInfo, error) {
	return f.logs, nil
}

type fakeRetentionClient struct {
	set     map[string]time.Duration
	deleted []string
	setErr  error
}

func (f *fakeRetentionClient) SetRetentionPolicy(
	ctx context.Context,
	logName string,
	period time.Duration,
) (*logsDomain.RetentionPolicy, error) {
	if f.setErr != nil {
		return nil, f.setErr
	}
	if f.set == nil {
		f.set = map[string]time.Duration{}
	}
	f.set[logName] = period
	return &logsDomain.RetentionPolicy{RetentionPeriod: period}, nil
}

func (f *fakeRetentionClient) DeleteRetentionPolicy(ctx context.Context, logName string) error {
	f.deleted = append(f.deleted, logName)
	return nil
}

type fakeEnforcer struct {
	report *logsDomain.RetentionReport
	err    error
}

func (f *fakeEnforcer) Enforce(ctx context.Context, now time.Time) (*logsDomain.RetentionReport, error) {
	return f.report, f.err
}
