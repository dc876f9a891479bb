package keypoints

import (
	"encoding/json"
	"fmt"
	"strings"

	"improv-client/internal/models"
)

// Переводчик возвращает таблицу в одном из двух известных соглашений об именах
// ключей: английском (head/body) или локализованном (testa/corpo). Все остальное —
// ошибка формата, а не повод для угадывания.
type taggedTable struct {
	Head  []string            `json:"head"`
	Body  [][]json.RawMessage `json:"body"`
	Testa []string            `json:"testa"`
	Corpo [][]json.RawMessage `json:"corpo"`
}

// Normalize разбирает сырой ответ переводчика и приводит его к канонической
// четырехколоночной проекции. Ячейки допускаются строками, числами (номер части)
// или массивами строк; массивы схлопываются через запятую.
func Normalize(raw json.RawMessage) (Projected, error) {
	var tagged taggedTable
	if err := json.Unmarshal(raw, &tagged); err != nil {
		return Projected{}, fmt.Errorf("%w: %v", models.ErrFormat, err)
	}

	var head []string
	var body [][]json.RawMessage
	switch {
	case len(tagged.Head) > 0:
		head, body = tagged.Head, tagged.Body
	case len(tagged.Testa) > 0:
		head, body = tagged.Testa, tagged.Corpo
	default:
		return Projected{}, fmt.Errorf("%w: no recognized head key", models.ErrFormat)
	}

	p := Projected{Head: head}
	for _, row := range body {
		cells := make([]string, 0, len(row))
		for _, cell := range row {
			s, err := flattenCell(cell)
			if err != nil {
				return Projected{}, err
			}
			cells = append(cells, s)
		}
		p.Body = append(p.Body, cells)
	}
	return p, nil
}

func flattenCell(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, ", "), nil
	}
	return "", fmt.Errorf("%w: unsupported cell type", models.ErrFormat)
}
