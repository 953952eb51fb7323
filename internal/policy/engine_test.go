package policy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"homewatch-policy/internal/models"
	"homewatch-policy/internal/repository"
)

type fakeTypeSource struct {
	types map[string]*models.AlertType
}

func (f *fakeTypeSource) GetByName(ctx context.Context, typeName string) (*models.AlertType, error) {
	if at, ok := f.types[typeName]; ok {
		return at, nil
	}
	return nil, repository.ErrAlertTypeNotFound
}

type fakeEventCounter struct {
	count int
	err   error
}

func (f *fakeEventCounter) CountProcessedByLabel(ctx context.Context, tenantID, houseID, label string, since, until time.Time) (int, error) {
	return f.count, f.err
}

type fakeAlertStore struct {
	existing  *models.Alert
	created   []*models.Alert
	createErr error
}

// GetOpenAlert 复现仓库语义：只看状态，不看 existing 的创建时间
func (f *fakeAlertStore) GetOpenAlert(ctx context.Context, tenantID, houseID, alertTypeID string) (*models.Alert, error) {
	if f.existing != nil && !f.existing.IsTerminal() {
		return f.existing, nil
	}
	return nil, nil
}

func (f *fakeAlertStore) CreateAlert(ctx context.Context, alert *models.Alert) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, alert)
	return nil
}

type fakeLocker struct {
	store    *fakeAlertStore
	lastKey  string
	lockUsed bool
}

func (f *fakeLocker) WithAlertStore(ctx context.Context, key string, fn func(store AlertStore) error) error {
	f.lockUsed = true
	f.lastKey = key
	return fn(f.store)
}

type engineFixture struct {
	engine *Engine
	store  *fakeAlertStore
	locker *fakeLocker
	events *fakeEventCounter
	typeID string
}

func setupEngine(t *testing.T, rules []*models.AlertRule) *engineFixture {
	t.Helper()

	typeID := uuid.New().String()
	store := &fakeAlertStore{}
	locker := &fakeLocker{store: store}
	events := &fakeEventCounter{}
	types := &fakeTypeSource{types: map[string]*models.AlertType{
		"fall": {AlertTypeID: typeID, TypeName: "fall"},
	}}
	resolver := NewRuleResolver(&fakeRuleSource{rules: rules}, nil, Defaults{
		ConfidenceThreshold:      0.70,
		AggregationWindowSeconds: 60,
		MinEventsForEscalation:   1,
	}, zap.NewNop())

	labelTypes := map[string]string{"fall": "fall", "distress": "missing-type"}

	return &engineFixture{
		engine: NewEngine(labelTypes, types, resolver, events, locker, zap.NewNop()),
		store:  store,
		locker: locker,
		events: events,
		typeID: typeID,
	}
}

func fallInput(score float64) EvaluationInput {
	return EvaluationInput{
		TenantID:       "t1",
		HouseID:        "h1",
		DeviceID:       "d1",
		Classification: models.Classification{Label: "fall", Score: score},
	}
}

func TestEvaluate_CreatesAlert(t *testing.T) {
	fx := setupEngine(t, nil)

	decision, err := fx.engine.Evaluate(context.Background(), fallInput(0.92))

	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, decision.Outcome)
	require.NotNil(t, decision.Alert)
	assert.Equal(t, "high", decision.Alert.Severity)
	assert.Equal(t, models.AlertStatusActive, decision.Alert.Status)
	assert.Equal(t, fx.typeID, decision.Alert.AlertTypeID)
	require.NotNil(t, decision.Alert.ConfidenceScore)
	assert.Equal(t, 0.92, *decision.Alert.ConfidenceScore)
	assert.Equal(t, "house:h1:alert_type:"+fx.typeID, fx.locker.lastKey)
	require.Len(t, fx.store.created, 1)
}

func TestEvaluate_UnmappedLabelSkips(t *testing.T) {
	fx := setupEngine(t, nil)

	decision, err := fx.engine.Evaluate(context.Background(), EvaluationInput{
		TenantID:       "t1",
		HouseID:        "h1",
		Classification: models.Classification{Label: "wandering", Score: 0.95},
	})

	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, decision.Outcome)
	assert.Equal(t, SkipUnmappedLabel, decision.Reason)
	assert.False(t, fx.locker.lockUsed)
}

func TestEvaluate_MappedTypeMissingFromCatalogSkips(t *testing.T) {
	fx := setupEngine(t, nil)

	// "distress" 映射到目录中不存在的类型
	decision, err := fx.engine.Evaluate(context.Background(), EvaluationInput{
		TenantID:       "t1",
		HouseID:        "h1",
		Classification: models.Classification{Label: "distress", Score: 0.95},
	})

	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, decision.Outcome)
	assert.Equal(t, SkipUnmappedLabel, decision.Reason)
}

func TestEvaluate_BelowThresholdSkips(t *testing.T) {
	fx := setupEngine(t, nil)

	decision, err := fx.engine.Evaluate(context.Background(), fallInput(0.5))

	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, decision.Outcome)
	assert.Equal(t, SkipBelowThreshold, decision.Reason)
	assert.False(t, fx.locker.lockUsed)
}

func TestEvaluate_RuleThresholdOverridesDefault(t *testing.T) {
	threshold := 0.9
	fx := setupEngine(t, []*models.AlertRule{{
		RuleID:              uuid.New().String(),
		ConfidenceThreshold: &threshold,
	}})

	// 0.8 高于默认 0.7 但低于规则阈值 0.9
	decision, err := fx.engine.Evaluate(context.Background(), fallInput(0.8))

	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, decision.Outcome)
	assert.Equal(t, SkipBelowThreshold, decision.Reason)
}

func TestEvaluate_EscalatesOnPriorEvents(t *testing.T) {
	fx := setupEngine(t, nil)
	fx.events.count = 2 // 聚合窗口内已有事件，达到升级条件

	decision, err := fx.engine.Evaluate(context.Background(), fallInput(0.75))

	require.NoError(t, err)
	require.Equal(t, OutcomeCreated, decision.Outcome)
	// medium 升级为 high
	assert.Equal(t, "high", decision.Alert.Severity)
}

func TestEvaluate_NoEscalationBelowMinEvents(t *testing.T) {
	fx := setupEngine(t, nil)
	fx.events.count = 0

	decision, err := fx.engine.Evaluate(context.Background(), fallInput(0.75))

	require.NoError(t, err)
	require.Equal(t, OutcomeCreated, decision.Outcome)
	assert.Equal(t, "medium", decision.Alert.Severity)
}

func TestEvaluate_SeverityFloorApplied(t *testing.T) {
	floor := "critical"
	fx := setupEngine(t, []*models.AlertRule{{
		RuleID:        uuid.New().String(),
		SeverityLevel: &floor,
	}})

	decision, err := fx.engine.Evaluate(context.Background(), fallInput(0.75))

	require.NoError(t, err)
	require.Equal(t, OutcomeCreated, decision.Outcome)
	assert.Equal(t, "critical", decision.Alert.Severity)
	require.NotNil(t, decision.Alert.RuleID)
}

func TestEvaluate_DuplicateSuppressed(t *testing.T) {
	fx := setupEngine(t, nil)
	existing := &models.Alert{
		AlertID: uuid.New().String(),
		Status:  models.AlertStatusActive,
	}
	fx.store.existing = existing

	decision, err := fx.engine.Evaluate(context.Background(), fallInput(0.92))

	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, decision.Outcome)
	assert.Equal(t, SkipDuplicateSuppressed, decision.Reason)
	require.NotNil(t, decision.Suppressor)
	assert.Equal(t, existing.AlertID, decision.Suppressor.AlertID)
	assert.Empty(t, fx.store.created)
}

func TestEvaluate_StaleActiveAlertStillSuppresses(t *testing.T) {
	fx := setupEngine(t, nil)
	// 未关闭警报早于任何冷却/去重窗口，仍然抑制
	fx.store.existing = &models.Alert{
		AlertID:   uuid.New().String(),
		Status:    models.AlertStatusActive,
		CreatedAt: time.Now().Add(-10 * time.Minute),
	}

	decision, err := fx.engine.Evaluate(context.Background(), fallInput(0.9))

	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, decision.Outcome)
	assert.Equal(t, SkipDuplicateSuppressed, decision.Reason)
	assert.Empty(t, fx.store.created)
}

func TestEvaluate_ResolvedPriorAlertDoesNotSuppress(t *testing.T) {
	fx := setupEngine(t, nil)
	fx.store.existing = &models.Alert{
		AlertID:   uuid.New().String(),
		Status:    models.AlertStatusResolved,
		CreatedAt: time.Now().Add(-time.Second),
	}

	decision, err := fx.engine.Evaluate(context.Background(), fallInput(0.9))

	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, decision.Outcome)
	require.Len(t, fx.store.created, 1)
}

func TestEvaluate_InvalidScoreIsError(t *testing.T) {
	fx := setupEngine(t, nil)

	_, err := fx.engine.Evaluate(context.Background(), fallInput(1.5))

	assert.Error(t, err)
}

func TestEvaluate_StoreFailureIsError(t *testing.T) {
	fx := setupEngine(t, nil)
	fx.store.createErr = errors.New("insert failed")

	_, err := fx.engine.Evaluate(context.Background(), fallInput(0.92))

	assert.Error(t, err)
}
