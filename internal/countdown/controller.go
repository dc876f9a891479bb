package countdown

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config задает бюджеты раундов режима быстрой реакции.
type Config struct {
	FirstBudget  time.Duration // первый раунд партии
	SteadyBudget time.Duration // все последующие
	MaxRounds    int           // размер партии вопросов
}

// Controller — пораундовый таймер режима "три вещи". Одноразовый дедлайн
// авторитетен: он принудительно продвигает раунд, если пользователь не успел.
// Секундный тик только обновляет отображаемый остаток и ни на что не влияет.
// Оба таймера снимаются при любом продвижении раунда, так что двойное
// продвижение (дедлайн против ручного ответа) исключено.
type Controller struct {
	mu  sync.Mutex
	cfg Config

	round     int // 1-based номер раунда в текущей партии
	remaining int // отображаемые секунды
	gen       int // поколение раунда: устаревшие таймеры no-op

	deadline *time.Timer
	tickStop chan struct{}

	onAdvance func(round int) // следующий раунд внутри партии
	onRefetch func()          // партия исчерпана, нужна новая порция раундов

	logger *zap.Logger
}

// New создает контроллер. Колбеки зовутся вне мьютекса.
func New(cfg Config, onAdvance func(round int), onRefetch func(), logger *zap.Logger) *Controller {
	if cfg.FirstBudget <= 0 {
		cfg.FirstBudget = 30 * time.Second
	}
	if cfg.SteadyBudget <= 0 {
		cfg.SteadyBudget = 15 * time.Second
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = 20
	}
	return &Controller{
		cfg:       cfg,
		onAdvance: onAdvance,
		onRefetch: onRefetch,
		logger:    logger.Named("Countdown"),
	}
}

// StartRound начинает очередной раунд: остаток сбрасывается на бюджет,
// взводится одноразовый дедлайн и секундный тик.
func (c *Controller) StartRound() {
	c.mu.Lock()
	c.cancelTimersLocked()

	c.round++
	budget := c.cfg.SteadyBudget
	if c.round == 1 {
		budget = c.cfg.FirstBudget
	}
	c.remaining = int(budget / time.Second)
	c.gen++
	gen := c.gen

	c.deadline = time.AfterFunc(budget, func() {
		c.logger.Debug("Дедлайн раунда", zap.Int("round", c.Round()))
		c.advance(gen)
	})

	stop := make(chan struct{})
	c.tickStop = stop
	go c.tickLoop(stop, gen)

	c.logger.Debug("Раунд начат", zap.Int("round", c.round), zap.Duration("budget", budget))
	c.mu.Unlock()
}

// Submit — явный ответ пользователя, продвигает раунд досрочно.
func (c *Controller) Submit() {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()
	c.advance(gen)
}

// Remaining возвращает отображаемый остаток секунд.
func (c *Controller) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Round возвращает номер текущего раунда в партии.
func (c *Controller) Round() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.round
}

// Stop снимает все таймеры и обнуляет счет партии: следующий StartRound
// получит бюджет первого раунда. Используется при выходе из режима.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelTimersLocked()
	c.gen++ // все взведенные таймеры устаревают
	c.round = 0
	c.remaining = 0
}

// advance продвигает раунд ровно один раз на поколение: проигравший гонку
// (дедлайн против ручного ответа) увидит устаревшее поколение и выйдет.
func (c *Controller) advance(gen int) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.cancelTimersLocked()
	c.gen++

	refetch := c.round >= c.cfg.MaxRounds
	round := c.round
	if refetch {
		// Партия исчерпана: локально не продвигаемся, запрашиваем новую порцию
		c.round = 0
	}
	c.mu.Unlock()

	if refetch {
		c.logger.Info("Партия раундов исчерпана, запрос новой", zap.Int("rounds", round))
		if c.onRefetch != nil {
			c.onRefetch()
		}
		return
	}
	if c.onAdvance != nil {
		c.onAdvance(round)
	}
}

func (c *Controller) cancelTimersLocked() {
	if c.deadline != nil {
		c.deadline.Stop()
		c.deadline = nil
	}
	if c.tickStop != nil {
		close(c.tickStop)
		c.tickStop = nil
	}
}

func (c *Controller) tickLoop(stop chan struct{}, gen int) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			if gen != c.gen {
				c.mu.Unlock()
				return
			}
			if c.remaining > 0 {
				c.remaining--
			}
			c.mu.Unlock()
		}
	}
}
