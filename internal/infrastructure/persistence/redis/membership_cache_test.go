package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lab-data-api/internal/domain/entity"
)

type countingRepo struct {
	mu    sync.Mutex
	rows  map[string]*entity.LabMembership
	err   error
	calls int
}

func (r *countingRepo) Lookup(_ context.Context, subjectID string, labID uuid.UUID) (*entity.LabMembership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.rows[subjectID+"/"+labID.String()], nil
}

func (r *countingRepo) put(m *entity.LabMembership) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[m.SubjectID+"/"+m.LabID.String()] = m
}

func (r *countingRepo) remove(subjectID string, labID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, subjectID+"/"+labID.String())
}

func TestMembershipCache_CachesPositiveResults(t *testing.T) {
	c, mr := newTestClient(t)
	lab := uuid.New()
	repo := &countingRepo{rows: map[string]*entity.LabMembership{}}
	repo.put(&entity.LabMembership{SubjectID: "u1", LabID: lab, Role: entity.RoleAdmin})
	mc := NewMembershipCache(NewCache(c), repo, 30*time.Second)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		m, err := mc.Lookup(ctx, "u1", lab)
		require.NoError(t, err)
		require.NotNil(t, m)
		assert.Equal(t, entity.RoleAdmin, m.Role)
		assert.Equal(t, lab, m.LabID)
	}
	assert.Equal(t, 1, repo.calls)
	assert.Equal(t, 30*time.Second, mr.TTL(membershipKey("u1", lab)))
}

func TestMembershipCache_DoesNotCacheAbsence(t *testing.T) {
	c, _ := newTestClient(t)
	lab := uuid.New()
	repo := &countingRepo{rows: map[string]*entity.LabMembership{}}
	mc := NewMembershipCache(NewCache(c), repo, 30*time.Second)
	ctx := context.Background()

	m, err := mc.Lookup(ctx, "u1", lab)
	require.NoError(t, err)
	assert.Nil(t, m)

	// 新授予的成员关系立即可见
	repo.put(&entity.LabMembership{SubjectID: "u1", LabID: lab, Role: entity.RoleViewer})
	m, err = mc.Lookup(ctx, "u1", lab)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, 2, repo.calls)
}

func TestMembershipCache_RevocationBoundedByTTL(t *testing.T) {
	c, mr := newTestClient(t)
	lab := uuid.New()
	repo := &countingRepo{rows: map[string]*entity.LabMembership{}}
	repo.put(&entity.LabMembership{SubjectID: "u1", LabID: lab, Role: entity.RoleViewer})
	mc := NewMembershipCache(NewCache(c), repo, 10*time.Second)
	ctx := context.Background()

	_, err := mc.Lookup(ctx, "u1", lab)
	require.NoError(t, err)
	repo.remove("u1", lab)

	mr.FastForward(10 * time.Second)
	m, err := mc.Lookup(ctx, "u1", lab)
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestMembershipCache_Invalidate(t *testing.T) {
	c, _ := newTestClient(t)
	lab := uuid.New()
	repo := &countingRepo{rows: map[string]*entity.LabMembership{}}
	repo.put(&entity.LabMembership{SubjectID: "u1", LabID: lab, Role: entity.RoleAdmin})
	mc := NewMembershipCache(NewCache(c), repo, time.Minute)
	ctx := context.Background()

	_, err := mc.Lookup(ctx, "u1", lab)
	require.NoError(t, err)

	repo.put(&entity.LabMembership{SubjectID: "u1", LabID: lab, Role: entity.RoleViewer})
	require.NoError(t, mc.Invalidate(ctx, "u1", lab))

	m, err := mc.Lookup(ctx, "u1", lab)
	require.NoError(t, err)
	assert.Equal(t, entity.RoleViewer, m.Role, "demotion is visible after invalidation")
}

func TestMembershipCache_TTLCapped(t *testing.T) {
	c, _ := newTestClient(t)
	mc := NewMembershipCache(NewCache(c), &countingRepo{}, time.Hour)
	assert.Equal(t, MaxMembershipCacheTTL, mc.ttl)
}

func TestMembershipCache_DisabledPassesThrough(t *testing.T) {
	c, mr := newTestClient(t)
	lab := uuid.New()
	repo := &countingRepo{rows: map[string]*entity.LabMembership{}}
	repo.put(&entity.LabMembership{SubjectID: "u1", LabID: lab, Role: entity.RoleAdmin})
	mc := NewMembershipCache(NewCache(c), repo, 0)

	for i := 0; i < 2; i++ {
		_, err := mc.Lookup(context.Background(), "u1", lab)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, repo.calls)
	assert.Empty(t, mr.Keys())
}

func TestMembershipCache_CacheOutageFallsThrough(t *testing.T) {
	c, mr := newTestClient(t)
	lab := uuid.New()
	repo := &countingRepo{rows: map[string]*entity.LabMembership{}}
	repo.put(&entity.LabMembership{SubjectID: "u1", LabID: lab, Role: entity.RoleTechnician})
	mc := NewMembershipCache(NewCache(c), repo, time.Minute)
	mr.Close()

	m, err := mc.Lookup(context.Background(), "u1", lab)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, entity.RoleTechnician, m.Role)
}

func TestMembershipCache_LookupErrorPropagates(t *testing.T) {
	c, _ := newTestClient(t)
	repo := &countingRepo{rows: map[string]*entity.LabMembership{}, err: errors.New("db down")}
	mc := NewMembershipCache(NewCache(c), repo, time.Minute)

	_, err := mc.Lookup(context.Background(), "u1", uuid.New())
	require.EqualError(t, err, "db down")
}

func TestMembershipCache_MalformedEntryIgnored(t *testing.T) {
	c, mr := newTestClient(t)
	lab := uuid.New()
	repo := &countingRepo{rows: map[string]*entity.LabMembership{}}
	repo.put(&entity.LabMembership{SubjectID: "u1", LabID: lab, Role: entity.RoleViewer})
	require.NoError(t, mr.Set(membershipKey("u1", lab), `{"role":"owner"}`))
	mc := NewMembershipCache(NewCache(c), repo, time.Minute)

	m, err := mc.Lookup(context.Background(), "u1", lab)
	require.NoError(t, err)
	assert.Equal(t, entity.RoleViewer, m.Role)
	assert.Equal(t, 1, repo.calls)
}

type gatedRepo struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
	row     *entity.LabMembership
}

func (r *gatedRepo) Lookup(ctx context.Context, _ string, _ uuid.UUID) (*entity.LabMembership, error) {
	r.once.Do(func() { close(r.entered) })
	select {
	case <-r.release:
		return r.row, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestMembershipCache_CancelledCallerDoesNotFailOthers(t *testing.T) {
	c, _ := newTestClient(t)
	lab := uuid.New()
	repo := &gatedRepo{
		entered: make(chan struct{}),
		release: make(chan struct{}),
		row:     &entity.LabMembership{SubjectID: "u1", LabID: lab, Role: entity.RoleTechnician},
	}
	mc := NewMembershipCache(NewCache(c), repo, time.Minute)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := mc.Lookup(ctxA, "u1", lab)
		errA <- err
	}()
	<-repo.entered

	type result struct {
		m   *entity.LabMembership
		err error
	}
	resB := make(chan result, 1)
	go func() {
		m, err := mc.Lookup(context.Background(), "u1", lab)
		resB <- result{m, err}
	}()

	cancelA()
	select {
	case err := <-errA:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return")
	}

	time.Sleep(20 * time.Millisecond)
	close(repo.release)

	select {
	case r := <-resB:
		require.NoError(t, r.err)
		require.NotNil(t, r.m)
		assert.Equal(t, entity.RoleTechnician, r.m.Role)
	case <-time.After(time.Second):
		t.Fatal("second caller did not return")
	}
}
