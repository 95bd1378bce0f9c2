package testutil

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	kekDomain "github.com/allisson/logvault/internal/kek/domain"
	logsDomain "github.com/allisson/logvault/internal/logs/domain"
)

// NoopTxManager runs fn directly. In-memory repositories have no transactions.
type NoopTxManager struct{}

// WithTx calls fn with ctx.
func (NoopTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// KEKVersionRepository is an in-memory kek version repository.
type KEKVersionRepository struct {
	mu       sync.Mutex
	versions []*kekDomain.KEKVersion
}

// NewKEKVersionRepository creates an empty KEKVersionRepository.
func NewKEKVersionRepository() *KEKVersionRepository {
	return &KEKVersionRepository{}
}

func (r *KEKVersionRepository) Create(_ context.Context, version *kekDomain.KEKVersion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := *version
	r.versions = append(r.versions, &v)
	return nil
}

func (r *KEKVersionRepository) Get(_ context.Context, tenantID string, id uuid.UUID) (*kekDomain.KEKVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.versions {
		if v.TenantID == tenantID && v.ID == id {
			c := *v
			return &c, nil
		}
	}
	return nil, kekDomain.ErrKEKVersionNotFound
}

func (r *KEKVersionRepository) GetActive(_ context.Context, tenantID string) (*kekDomain.KEKVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.versions {
		if v.TenantID == tenantID && v.Status == kekDomain.StatusActive {
			c := *v
			return &c, nil
		}
	}
	return nil, kekDomain.ErrNoActiveVersion
}

func (r *KEKVersionRepository) List(_ context.Context, tenantID string) ([]*kekDomain.KEKVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*kekDomain.KEKVersion
	for i := len(r.versions) - 1; i >= 0; i-- {
		if v := r.versions[i]; v.TenantID == tenantID {
			c := *v
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *KEKVersionRepository) UpdateStatus(
	_ context.Context,
	tenantID string,
	id uuid.UUID,
	status kekDomain.VersionStatus,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.versions {
		if v.TenantID == tenantID && v.ID == id {
			v.Status = status
			return nil
		}
	}
	return kekDomain.ErrKEKVersionNotFound
}

// GrantRepository is an in-memory grant repository.
type GrantRepository struct {
	mu     sync.Mutex
	grants []*kekDomain.UserKEKGrant
}

// NewGrantRepository creates an empty GrantRepository.
func NewGrantRepository() *GrantRepository {
	return &GrantRepository{}
}

func (r *GrantRepository) find(tenantID, userID string, versionID uuid.UUID) *kekDomain.UserKEKGrant {
	for _, g := range r.grants {
		if g.TenantID == tenantID && g.UserID == userID && g.KEKVersionID == versionID {
			return g
		}
	}
	return nil
}

func (r *GrantRepository) Create(_ context.Context, grant *kekDomain.UserKEKGrant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.find(grant.TenantID, grant.UserID, grant.KEKVersionID) != nil {
		return errDuplicate("kek grant")
	}
	g := *grant
	r.grants = append(r.grants, &g)
	return nil
}

func (r *GrantRepository) Get(
	_ context.Context,
	tenantID, userID string,
	versionID uuid.UUID,
) (*kekDomain.UserKEKGrant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g := r.find(tenantID, userID, versionID); g != nil {
		c := *g
		return &c, nil
	}
	return nil, kekDomain.ErrGrantNotFound
}

func (r *GrantRepository) ListByUser(_ context.Context, tenantID, userID string) ([]*kekDomain.UserKEKGrant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*kekDomain.UserKEKGrant
	for i := len(r.grants) - 1; i >= 0; i-- {
		if g := r.grants[i]; g.TenantID == tenantID && g.UserID == userID {
			c := *g
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *GrantRepository) ListByVersion(
	_ context.Context,
	tenantID string,
	versionID uuid.UUID,
) ([]*kekDomain.UserKEKGrant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*kekDomain.UserKEKGrant
	for _, g := range r.grants {
		if g.TenantID == tenantID && g.KEKVersionID == versionID {
			c := *g
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *GrantRepository) UpdateWrappedKEK(
	_ context.Context,
	tenantID, userID string,
	versionID uuid.UUID,
	wrappedKEK []byte,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g := r.find(tenantID, userID, versionID)
	if g == nil {
		return kekDomain.ErrGrantNotFound
	}
	g.WrappedKEK = append([]byte(nil), wrappedKEK...)
	return nil
}

// PublicKeyRepository is an in-memory public key repository.
type PublicKeyRepository struct {
	mu   sync.Mutex
	keys map[string]*kekDomain.UserPublicKey
}

// NewPublicKeyRepository creates an empty PublicKeyRepository.
func NewPublicKeyRepository() *PublicKeyRepository {
	return &PublicKeyRepository{keys: make(map[string]*kekDomain.UserPublicKey)}
}

func (r *PublicKeyRepository) Upsert(_ context.Context, key *kekDomain.UserPublicKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := *key
	if existing, ok := r.keys[key.TenantID+"/"+key.UserID]; ok {
		k.CreatedAt = existing.CreatedAt
	}
	r.keys[key.TenantID+"/"+key.UserID] = &k
	return nil
}

func (r *PublicKeyRepository) Get(_ context.Context, tenantID, userID string) (*kekDomain.UserPublicKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if k, ok := r.keys[tenantID+"/"+userID]; ok {
		c := *k
		return &c, nil
	}
	return nil, kekDomain.ErrPublicKeyNotFound
}

// TenantStateRepository is an in-memory tenant key state repository.
type TenantStateRepository struct {
	mu     sync.Mutex
	states map[string]*kekDomain.TenantKeyState
}

// NewTenantStateRepository creates an empty TenantStateRepository.
func NewTenantStateRepository() *TenantStateRepository {
	return &TenantStateRepository{states: make(map[string]*kekDomain.TenantKeyState)}
}

func (r *TenantStateRepository) Get(_ context.Context, tenantID string) (*kekDomain.TenantKeyState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.states[tenantID]; ok {
		c := *s
		return &c, nil
	}
	return kekDomain.NewTenantKeyState(tenantID), nil
}

func (r *TenantStateRepository) Save(
	_ context.Context,
	state *kekDomain.TenantKeyState,
	expectedRevision int64,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var current int64
	if s, ok := r.states[state.TenantID]; ok {
		current = s.Revision
	}
	if current != expectedRevision {
		return kekDomain.ErrVersionConflict
	}
	state.Revision = expectedRevision + 1
	state.UpdatedAt = time.Now().UTC()
	c := *state
	r.states[state.TenantID] = &c
	return nil
}

// RotationJobRepository is an in-memory rotation job repository.
type RotationJobRepository struct {
	mu    sync.Mutex
	jobs  []*kekDomain.RotationJob
	items map[uuid.UUID][]*kekDomain.RotationItem
}

// NewRotationJobRepository creates an empty RotationJobRepository.
func NewRotationJobRepository() *RotationJobRepository {
	return &RotationJobRepository{items: make(map[uuid.UUID][]*kekDomain.RotationItem)}
}

func (r *RotationJobRepository) Create(_ context.Context, job *kekDomain.RotationJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j := *job
	r.jobs = append(r.jobs, &j)
	return nil
}

func (r *RotationJobRepository) Get(_ context.Context, tenantID string, id uuid.UUID) (*kekDomain.RotationJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.TenantID == tenantID && j.ID == id {
			c := *j
			return &c, nil
		}
	}
	return nil, kekDomain.ErrRotationJobNotFound
}

func (r *RotationJobRepository) GetLatest(_ context.Context, tenantID string) (*kekDomain.RotationJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.jobs) - 1; i >= 0; i-- {
		if j := r.jobs[i]; j.TenantID == tenantID {
			c := *j
			return &c, nil
		}
	}
	return nil, kekDomain.ErrRotationJobNotFound
}

func (r *RotationJobRepository) Update(_ context.Context, job *kekDomain.RotationJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, j := range r.jobs {
		if j.ID == job.ID {
			c := *job
			r.jobs[i] = &c
			return nil
		}
	}
	return kekDomain.ErrRotationJobNotFound
}

func (r *RotationJobRepository) CreateItems(_ context.Context, items []*kekDomain.RotationItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range items {
		c := *item
		r.items[item.JobID] = append(r.items[item.JobID], &c)
	}
	return nil
}

func (r *RotationJobRepository) GetItem(_ context.Context, jobID, logID uuid.UUID) (*kekDomain.RotationItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range r.items[jobID] {
		if item.LogID == logID {
			c := *item
			return &c, nil
		}
	}
	return nil, kekDomain.ErrRotationItemNotFound
}

func (r *RotationJobRepository) ListItems(
	_ context.Context,
	jobID uuid.UUID,
	status kekDomain.ItemStatus,
) ([]*kekDomain.RotationItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*kekDomain.RotationItem
	for _, item := range r.items[jobID] {
		if status == "" || item.Status == status {
			c := *item
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *RotationJobRepository) UpdateItem(_ context.Context, item *kekDomain.RotationItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.items[item.JobID] {
		if existing.LogID == item.LogID {
			c := *item
			r.items[item.JobID][i] = &c
			return nil
		}
	}
	return kekDomain.ErrRotationItemNotFound
}

func (r *RotationJobRepository) CountItems(_ context.Context, jobID uuid.UUID) (map[kekDomain.ItemStatus]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[kekDomain.ItemStatus]int)
	for _, item := range r.items[jobID] {
		counts[item.Status]++
	}
	return counts, nil
}

// LogRepository is an in-memory log repository.
type LogRepository struct {
	mu   sync.Mutex
	logs []*logsDomain.Log
}

// NewLogRepository creates an empty LogRepository.
func NewLogRepository() *LogRepository {
	return &LogRepository{}
}

func (r *LogRepository) Create(_ context.Context, log *logsDomain.Log) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.logs {
		if l.TenantID == log.TenantID && (l.ID == log.ID || l.EncryptedName == log.EncryptedName) {
			return logsDomain.ErrLogExists
		}
	}
	c := *log
	r.logs = append(r.logs, &c)
	return nil
}

func (r *LogRepository) Get(_ context.Context, tenantID string, id uuid.UUID) (*logsDomain.Log, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.logs {
		if l.TenantID == tenantID && l.ID == id {
			c := *l
			return &c, nil
		}
	}
	return nil, logsDomain.ErrLogNotFound
}

func (r *LogRepository) GetByName(_ context.Context, tenantID, encryptedName string) (*logsDomain.Log, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.logs {
		if l.TenantID == tenantID && l.EncryptedName == encryptedName {
			c := *l
			return &c, nil
		}
	}
	return nil, logsDomain.ErrLogNotFound
}

func (r *LogRepository) List(_ context.Context, tenantID string) ([]*logsDomain.Log, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*logsDomain.Log
	for _, l := range r.logs {
		if l.TenantID == tenantID {
			c := *l
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *LogRepository) ListIDs(ctx context.Context, tenantID string) ([]uuid.UUID, error) {
	logs, _ := r.List(ctx, tenantID)
	ids := make([]uuid.UUID, len(logs))
	for i, l := range logs {
		ids[i] = l.ID
	}
	return ids, nil
}

func (r *LogRepository) UpdateName(_ context.Context, log *logsDomain.Log) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.logs {
		if l.TenantID == log.TenantID && l.ID != log.ID && l.EncryptedName == log.EncryptedName {
			return logsDomain.ErrLogExists
		}
	}
	for _, l := range r.logs {
		if l.TenantID == log.TenantID && l.ID == log.ID {
			l.EncryptedName = log.EncryptedName
			l.KEKVersionID = log.KEKVersionID
			l.UpdatedAt = log.UpdatedAt
			return nil
		}
	}
	return logsDomain.ErrLogNotFound
}

// LogKeyRepository is an in-memory log key repository.
type LogKeyRepository struct {
	mu   sync.Mutex
	keys []*logsDomain.LogKey
}

// NewLogKeyRepository creates an empty LogKeyRepository.
func NewLogKeyRepository() *LogKeyRepository {
	return &LogKeyRepository{}
}

func (r *LogKeyRepository) Create(_ context.Context, key *logsDomain.LogKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range r.keys {
		if k.TenantID == key.TenantID && k.LogID == key.LogID && k.KEKVersionID == key.KEKVersionID {
			return logsDomain.ErrLogKeyExists
		}
	}
	c := *key
	r.keys = append(r.keys, &c)
	return nil
}

func (r *LogKeyRepository) Get(
	_ context.Context,
	tenantID string,
	logID, versionID uuid.UUID,
) (*logsDomain.LogKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range r.keys {
		if k.TenantID == tenantID && k.LogID == logID && k.KEKVersionID == versionID {
			c := *k
			return &c, nil
		}
	}
	return nil, logsDomain.ErrLogKeyNotFound
}

func (r *LogKeyRepository) GetByName(
	_ context.Context,
	tenantID string,
	versionID uuid.UUID,
	encryptedName string,
) (*logsDomain.LogKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range r.keys {
		if k.TenantID == tenantID && k.KEKVersionID == versionID && k.EncryptedName == encryptedName {
			c := *k
			return &c, nil
		}
	}
	return nil, logsDomain.ErrLogKeyNotFound
}

func (r *LogKeyRepository) List(_ context.Context, tenantID string, logID uuid.UUID) ([]*logsDomain.LogKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*logsDomain.LogKey
	for i := len(r.keys) - 1; i >= 0; i-- {
		if k := r.keys[i]; k.TenantID == tenantID && k.LogID == logID {
			c := *k
			out = append(out, &c)
		}
	}
	return out, nil
}

// EntryRepository is an in-memory entry repository.
type EntryRepository struct {
	mu      sync.Mutex
	entries []*logsDomain.EncryptedLogEntry
}

// NewEntryRepository creates an empty EntryRepository.
func NewEntryRepository() *EntryRepository {
	return &EntryRepository{}
}

// All returns every stored entry.
func (r *EntryRepository) All() []*logsDomain.EncryptedLogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*logsDomain.EncryptedLogEntry, len(r.entries))
	for i, e := range r.entries {
		c := *e
		out[i] = &c
	}
	return out
}

func (r *EntryRepository) Create(_ context.Context, entry *logsDomain.EncryptedLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.ID == entry.ID {
			return logsDomain.ErrEntryExists
		}
	}
	c := *entry
	r.entries = append(r.entries, &c)
	return nil
}

func (r *EntryRepository) List(
	_ context.Context,
	tenantID string,
	filter logsDomain.EntryFilter,
) ([]*logsDomain.EncryptedLogEntry, error) {
	return r.collect(tenantID, filter, func(*logsDomain.EncryptedLogEntry) bool { return true }), nil
}

func (r *EntryRepository) Search(
	_ context.Context,
	tenantID string,
	query logsDomain.SearchQuery,
) ([]*logsDomain.EncryptedLogEntry, error) {
	return r.collect(tenantID, query.EntryFilter, func(e *logsDomain.EncryptedLogEntry) bool {
		for _, group := range query.Groups {
			if containsAll(e.SearchTokens, group) {
				return true
			}
		}
		return false
	}), nil
}

func (r *EntryRepository) collect(
	tenantID string,
	filter logsDomain.EntryFilter,
	match func(*logsDomain.EncryptedLogEntry) bool,
) []*logsDomain.EncryptedLogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*logsDomain.EncryptedLogEntry
	for _, e := range r.entries {
		if e.TenantID != tenantID {
			continue
		}
		if filter.LogID != nil && e.LogID != *filter.LogID {
			continue
		}
		if filter.From != nil && e.Timestamp.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !e.Timestamp.Before(*filter.To) {
			continue
		}
		if !match(e) {
			continue
		}
		c := *e
		out = append(out, &c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})

	if filter.Offset >= len(out) {
		return nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out
}

func containsAll(tokens, required []string) bool {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	for _, t := range required {
		if _, ok := set[t]; !ok {
			return false
		}
	}
	return true
}

func (r *EntryRepository) CountBefore(
	_ context.Context,
	tenantID string,
	logID uuid.UUID,
	cutoff time.Time,
) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, e := range r.entries {
		if e.TenantID == tenantID && e.LogID == logID && e.Timestamp.Before(cutoff) {
			n++
		}
	}
	return n, nil
}

func (r *EntryRepository) ListBefore(
	_ context.Context,
	tenantID string,
	logID uuid.UUID,
	cutoff time.Time,
	limit int,
) ([]*logsDomain.EncryptedLogEntry, error) {
	return r.collect(tenantID, logsDomain.EntryFilter{LogID: &logID, To: &cutoff, Limit: limit},
		func(*logsDomain.EncryptedLogEntry) bool { return true }), nil
}

func (r *EntryRepository) Delete(_ context.Context, tenantID string, ids []uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	remove := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		remove[id] = struct{}{}
	}
	kept := r.entries[:0]
	var n int64
	for _, e := range r.entries {
		if _, ok := remove[e.ID]; ok && e.TenantID == tenantID {
			n++
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept
	return n, nil
}

// RetentionPolicyRepository is an in-memory retention policy repository.
type RetentionPolicyRepository struct {
	mu       sync.Mutex
	policies []*logsDomain.RetentionPolicy
}

// NewRetentionPolicyRepository creates an empty RetentionPolicyRepository.
func NewRetentionPolicyRepository() *RetentionPolicyRepository {
	return &RetentionPolicyRepository{}
}

func (r *RetentionPolicyRepository) Upsert(_ context.Context, policy *logsDomain.RetentionPolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *policy
	for i, p := range r.policies {
		if p.TenantID == policy.TenantID && p.LogID == policy.LogID {
			r.policies[i] = &c
			return nil
		}
	}
	r.policies = append(r.policies, &c)
	return nil
}

func (r *RetentionPolicyRepository) Get(
	_ context.Context,
	tenantID string,
	logID uuid.UUID,
) (*logsDomain.RetentionPolicy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.policies {
		if p.TenantID == tenantID && p.LogID == logID {
			c := *p
			return &c, nil
		}
	}
	return nil, logsDomain.ErrRetentionPolicyNotFound
}

func (r *RetentionPolicyRepository) Delete(_ context.Context, tenantID string, logID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range r.policies {
		if p.TenantID == tenantID && p.LogID == logID {
			r.policies = append(r.policies[:i], r.policies[i+1:]...)
			return nil
		}
	}
	return logsDomain.ErrRetentionPolicyNotFound
}

func (r *RetentionPolicyRepository) List(_ context.Context, tenantID string) ([]*logsDomain.RetentionPolicy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*logsDomain.RetentionPolicy
	for _, p := range r.policies {
		if p.TenantID == tenantID {
			c := *p
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *RetentionPolicyRepository) ListAll(_ context.Context) ([]*logsDomain.RetentionPolicy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*logsDomain.RetentionPolicy, len(r.policies))
	for i, p := range r.policies {
		c := *p
		out[i] = &c
	}
	return out, nil
}
