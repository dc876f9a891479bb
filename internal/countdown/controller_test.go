package countdown_test

import (
	"sync"
	"testing"
	"time"

	"improv-client/internal/countdown"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recorder struct {
	mu       sync.Mutex
	advanced []int
	refetch  int
}

func (r *recorder) onAdvance(round int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advanced = append(r.advanced, round)
}

func (r *recorder) onRefetch() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refetch++
}

func (r *recorder) snapshot() ([]int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.advanced...), r.refetch
}

func newController(rec *recorder, first, steady time.Duration, maxRounds int) *countdown.Controller {
	return countdown.New(countdown.Config{
		FirstBudget:  first,
		SteadyBudget: steady,
		MaxRounds:    maxRounds,
	}, rec.onAdvance, rec.onRefetch, zap.NewNop())
}

func TestDeadlineAdvances(t *testing.T) {
	rec := &recorder{}
	c := newController(rec, 40*time.Millisecond, 40*time.Millisecond, 5)

	c.StartRound()
	assert.Equal(t, 1, c.Round())

	time.Sleep(80 * time.Millisecond)
	advanced, refetch := rec.snapshot()
	require.Len(t, advanced, 1)
	assert.Equal(t, 1, advanced[0])
	assert.Zero(t, refetch)
}

func TestSubmitAdvancesEarly(t *testing.T) {
	rec := &recorder{}
	c := newController(rec, time.Minute, time.Minute, 5)

	c.StartRound()
	c.Submit()

	advanced, _ := rec.snapshot()
	require.Len(t, advanced, 1)

	// Дедлайн того же раунда уже снят: второго продвижения не будет
	time.Sleep(30 * time.Millisecond)
	advanced, _ = rec.snapshot()
	assert.Len(t, advanced, 1)
}

func TestNoDuplicateAdvancement(t *testing.T) {
	rec := &recorder{}
	c := newController(rec, 30*time.Millisecond, 30*time.Millisecond, 10)

	c.StartRound()
	// Ручной ответ наперегонки с дедлайном
	time.Sleep(25 * time.Millisecond)
	c.Submit()
	time.Sleep(50 * time.Millisecond)

	advanced, _ := rec.snapshot()
	assert.Len(t, advanced, 1)
}

func TestRefetchPastMaxRounds(t *testing.T) {
	rec := &recorder{}
	c := newController(rec, 10*time.Millisecond, 10*time.Millisecond, 2)

	c.StartRound() // раунд 1
	c.Submit()
	c.StartRound() // раунд 2 — последний в партии
	c.Submit()

	advanced, refetch := rec.snapshot()
	assert.Equal(t, []int{1}, advanced)
	assert.Equal(t, 1, refetch)
	// Счет партии начинается заново
	c.StartRound()
	assert.Equal(t, 1, c.Round())
}

func TestRemainingCountsDown(t *testing.T) {
	rec := &recorder{}
	c := newController(rec, 3*time.Second, 3*time.Second, 5)

	c.StartRound()
	assert.Equal(t, 3, c.Remaining())

	time.Sleep(1100 * time.Millisecond)
	assert.LessOrEqual(t, c.Remaining(), 2)
	c.Stop()
}

func TestStopCancelsTimers(t *testing.T) {
	rec := &recorder{}
	c := newController(rec, 30*time.Millisecond, 30*time.Millisecond, 5)

	c.StartRound()
	c.Stop()
	time.Sleep(60 * time.Millisecond)

	advanced, refetch := rec.snapshot()
	assert.Empty(t, advanced)
	assert.Zero(t, refetch)
}

func TestStopResetsBatch(t *testing.T) {
	rec := &recorder{}
	c := newController(rec, 30*time.Second, 15*time.Second, 5)

	c.StartRound()
	c.Submit()
	c.StartRound()
	require.Equal(t, 2, c.Round())
	require.Equal(t, 15, c.Remaining())

	// Выход из режима обнуляет партию: новый вход получает бюджет первого раунда
	c.Stop()
	assert.Equal(t, 0, c.Round())

	c.StartRound()
	assert.Equal(t, 1, c.Round())
	assert.Equal(t, 30, c.Remaining())
	c.Stop()
}

func TestFirstAndSteadyBudgets(t *testing.T) {
	rec := &recorder{}
	c := newController(rec, 30*time.Second, 15*time.Second, 5)

	c.StartRound()
	assert.Equal(t, 30, c.Remaining())
	c.Submit()

	c.StartRound()
	assert.Equal(t, 15, c.Remaining())
	c.Stop()
}
