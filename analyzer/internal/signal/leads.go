package signal

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoLeads в записи нет ни одного отведения
var ErrNoLeads = errors.New("signal: recording has no leads")

// Recording многоканальная запись с общей частотой дискретизации
type Recording struct {
	Rate  float64
	names []string
	leads map[string]*Slice
}

// NewRecording создает пустую запись
func NewRecording(fs float64) *Recording {
	return &Recording{Rate: fs, leads: make(map[string]*Slice)}
}

// AddLead добавляет отведение
func (r *Recording) AddLead(name string, samples []float64) {
	if _, exists := r.leads[name]; !exists {
		r.names = append(r.names, name)
	}
	r.leads[name] = NewSlice(samples, r.Rate)
}

// Lead возвращает отведение по имени
func (r *Recording) Lead(name string) (*Slice, bool) {
	s, ok := r.leads[name]
	return s, ok
}

// Names имена отведений в порядке добавления
func (r *Recording) Names() []string {
	return append([]string(nil), r.names...)
}

// LeadResolver выбирает отведение для детекции
type LeadResolver interface {
	// Resolve возвращает выбранное отведение и признак точного совпадения с предпочтительным
	Resolve(preferred string, available []string) (name string, exact bool, err error)
}

// similarLeads отведения со схожей морфологией QRS, в порядке убывания сходства
var similarLeads = map[string][]string{
	"II":  {"MLII", "ECG", "III", "AVF", "I", "V5", "V6", "V4"},
	"I":   {"AVL", "II", "MLII", "V6", "V5"},
	"III": {"AVF", "II", "MLII"},
	"AVF": {"III", "II", "MLII"},
	"AVL": {"I", "V6"},
	"AVR": {"II", "I"},
	"V1":  {"V2", "MLIII", "V3"},
	"V2":  {"V1", "V3"},
	"V3":  {"V2", "V4"},
	"V4":  {"V5", "V3"},
	"V5":  {"V4", "V6", "II", "MLII"},
	"V6":  {"V5", "I"},
}

// MatchTable разрешает отведение по таблице структурного сходства
type MatchTable struct{}

func normalizeLead(name string) string {
	n := strings.ToUpper(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, " ", "")
	if n == "MLII" {
		return "II"
	}
	return n
}

// Resolve точное совпадение (с учетом регистра и записи "MLII"),
// иначе ближайшее по таблице, иначе первое доступное
func (MatchTable) Resolve(preferred string, available []string) (string, bool, error) {
	if len(available) == 0 {
		return "", false, ErrNoLeads
	}

	want := normalizeLead(preferred)
	index := make(map[string]string, len(available))
	for _, name := range available {
		n := normalizeLead(name)
		if _, dup := index[n]; !dup {
			index[n] = name
		}
		if n == want {
			return name, true, nil
		}
	}

	for _, candidate := range similarLeads[want] {
		if name, ok := index[normalizeLead(candidate)]; ok {
			return name, false, nil
		}
	}

	return available[0], false, nil
}

// ResolveLead выбирает отведение записи через resolver
func (r *Recording) ResolveLead(resolver LeadResolver, preferred string) (*Slice, string, bool, error) {
	name, exact, err := resolver.Resolve(preferred, r.names)
	if err != nil {
		return nil, "", false, err
	}
	lead, ok := r.leads[name]
	if !ok {
		return nil, "", false, fmt.Errorf("resolved lead %q not in recording", name)
	}
	return lead, name, exact, nil
}
