package keypoints

import (
	"fmt"
	"strings"
	"sync"

	"improv-client/internal/models"

	"go.uber.org/zap"
)

const columns = 4

// DefaultHead — канонические заголовки таблицы (исходный язык).
var DefaultHead = []string{"Story Part", "Who", "Where", "Objects"}

// Row is one derived key-point entry. PartIndex is 1-based and monotonic:
// row n always describes part n, translation never renumbers rows.
type Row struct {
	PartIndex int      `json:"part"`
	Who       []string `json:"who"`
	Where     string   `json:"where"`
	Objects   []string `json:"objects"`
}

// Projected — табличная проекция для отображения и для отправки переводчику.
// Многозначные ячейки уже схлопнуты в строки через запятую.
type Projected struct {
	Head []string   `json:"head"`
	Body [][]string `json:"body"`
}

// Table накапливает ключевые точки истории. Строки только добавляются;
// переведенное представление хранится отдельно и не трогает канонические данные.
type Table struct {
	mu      sync.Mutex
	rows    []Row
	display *Projected // последний удачный перевод, nil = показываем канонику
	logger  *zap.Logger
}

// New создает пустую таблицу.
func New(logger *zap.Logger) *Table {
	return &Table{logger: logger.Named("KeyPoints")}
}

// AddRow добавляет строку [rowCount+1, who, where, objects]. Нумерация 1-based,
// монотонная; удалений не бывает.
func (t *Table) AddRow(who []string, where string, objects []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	row := Row{
		PartIndex: len(t.rows) + 1,
		Who:       append([]string(nil), who...),
		Where:     where,
		Objects:   append([]string(nil), objects...),
	}
	t.rows = append(t.rows, row)
	t.logger.Debug("Добавлена ключевая точка",
		zap.Int("part", row.PartIndex),
		zap.String("where", row.Where))
}

// Len возвращает число строк.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rows)
}

// Rows возвращает копию канонических строк.
func (t *Table) Rows() []Row {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Row, len(t.rows))
	copy(out, t.rows)
	return out
}

// LastRow возвращает последнюю добавленную строку.
func (t *Table) LastRow() (Row, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.rows) == 0 {
		return Row{}, false
	}
	return t.rows[len(t.rows)-1], true
}

// Project строит каноническую проекцию: who и objects схлопываются в строки
// через запятую. Именно этот вид уходит переводчику.
func (t *Table) Project() Projected {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := Projected{Head: append([]string(nil), DefaultHead...)}
	for _, r := range t.rows {
		p.Body = append(p.Body, []string{
			fmt.Sprintf("%d", r.PartIndex),
			strings.Join(r.Who, ", "),
			r.Where,
			strings.Join(r.Objects, ", "),
		})
	}
	return p
}

// Merge принимает переведенную таблицу от коллаборатора и делает ее отображаемым
// представлением. Форма проверяется заново: голова ровно из четырех заголовков,
// каждая строка ровно из четырех ячеек. При нарушении возвращается ErrFormat,
// прежнее представление не затирается.
func (t *Table) Merge(p Projected) error {
	if len(p.Head) != columns {
		return fmt.Errorf("%w: head has %d columns", models.ErrFormat, len(p.Head))
	}
	for i, row := range p.Body {
		if len(row) != columns {
			return fmt.Errorf("%w: body row %d has %d cells", models.ErrFormat, i, len(row))
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.display = &p
	t.logger.Debug("Перевод таблицы принят", zap.Int("rows", len(p.Body)))
	return nil
}

// View возвращает таблицу для отображения: последний удачный перевод,
// либо каноническую проекцию, если перевода не было.
func (t *Table) View() Projected {
	t.mu.Lock()
	display := t.display
	t.mu.Unlock()
	if display != nil {
		return *display
	}
	return t.Project()
}

// Reset очищает таблицу. Вызывается только общим сбросом сессии.
func (t *Table) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows = nil
	t.display = nil
}

// Snapshot/Restore для session-хранилища.

type Snapshot struct {
	Rows    []Row      `json:"rows"`
	Display *Projected `json:"display,omitempty"`
}

func (t *Table) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	rows := make([]Row, len(t.rows))
	copy(rows, t.rows)
	return Snapshot{Rows: rows, Display: t.display}
}

func (t *Table) Restore(snap Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows = snap.Rows
	t.display = snap.Display
}
