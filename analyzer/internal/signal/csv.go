package signal

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// ReadCSVFile читает запись из CSV файла.
// Первая строка заголовок с именами отведений; колонка "time" (секунды) необязательна.
// Если fs <= 0, частота вычисляется по колонке времени.
func ReadCSVFile(filename string, fs float64) (*Recording, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file %s: %w", filename, err)
	}
	defer file.Close()

	rec, err := ReadCSV(file, fs)
	if err != nil {
		return nil, fmt.Errorf("CSV file %s: %w", filename, err)
	}
	return rec, nil
}

// ReadCSV читает запись из CSV потока
func ReadCSV(r io.Reader, fs float64) (*Recording, error) {
	reader := csv.NewReader(r)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV data: %w", err)
	}

	if len(records) < 2 {
		return nil, fmt.Errorf("no data records")
	}

	header := records[0]
	timeCol := -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "time", "t", "sec", "seconds":
			timeCol = i
		}
	}

	columns := make([][]float64, len(header))
	var times []float64
	for i, record := range records[1:] { // Skip header
		if len(record) != len(header) {
			return nil, fmt.Errorf("invalid record at line %d: expected %d columns", i+2, len(header))
		}
		for j, field := range record {
			value, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid value format at line %d: %w", i+2, err)
			}
			if j == timeCol {
				times = append(times, value)
				continue
			}
			columns[j] = append(columns[j], value)
		}
	}

	if fs <= 0 {
		if len(times) < 2 || times[len(times)-1] <= times[0] {
			return nil, fmt.Errorf("sampling rate is not set and cannot be derived")
		}
		fs = math.Round(float64(len(times)-1) / (times[len(times)-1] - times[0]))
	}

	rec := NewRecording(fs)
	for j, name := range header {
		if j == timeCol {
			continue
		}
		rec.AddLead(strings.TrimSpace(name), columns[j])
	}

	if len(rec.Names()) == 0 {
		return nil, ErrNoLeads
	}
	return rec, nil
}
