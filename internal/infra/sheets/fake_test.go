package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeSheets is a minimal in-process stand-in for the Sheets v4 REST API.
// It understands whole-sheet reads, appends, single-anchor updates and row
// deletions.
type fakeSheets struct {
	mu       sync.Mutex
	grids    map[string][][]interface{}
	ids      map[string]int64
	requests int

	failNext    int // respond 503 to the next n requests
	lostAppends int // apply the next n appends but respond 503
	failWrites  int // reject the next n value updates with 503
}

func newFakeSheets(titles ...string) *fakeSheets {
	f := &fakeSheets{grids: make(map[string][][]interface{}), ids: make(map[string]int64)}
	for i, t := range titles {
		f.grids[t] = nil
		f.ids[t] = int64(i)
	}
	return f
}

func (f *fakeSheets) seed(title string, rows ...[]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grids[title] = rows
}

func (f *fakeSheets) grid(title string) [][]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.grids[title]
}

func (f *fakeSheets) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

func writeUnavailable(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	w.Write([]byte(`{"error":{"code":503,"message":"backend unavailable","status":"UNAVAILABLE"}}`))
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++

	if f.failNext > 0 {
		f.failNext--
		writeUnavailable(w)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v4/spreadsheets/")
	switch {
	case strings.HasSuffix(rest, ":batchUpdate"):
		f.batchUpdate(w, r)
		return
	case !strings.Contains(rest, "/values/"):
		f.spreadsheet(w)
		return
	}

	rng := rest[strings.Index(rest, "/values/")+len("/values/"):]
	switch {
	case strings.HasSuffix(rng, ":append"):
		sheet, _, _ := parseA1(strings.TrimSuffix(rng, ":append"))
		rows := decodeRows(r)
		f.grids[sheet] = append(trimBlank(f.grids[sheet]), rows...)
		if f.lostAppends > 0 {
			f.lostAppends--
			writeUnavailable(w)
			return
		}
	case r.Method == http.MethodPut:
		if f.failWrites > 0 {
			f.failWrites--
			writeUnavailable(w)
			return
		}
		sheet, col, row := parseA1(rng)
		f.update(sheet, col, row, decodeRows(r))
	case r.Method == http.MethodGet:
		sheet, _, _ := parseA1(rng)
		writeJSON(w, map[string]interface{}{"range": rng, "majorDimension": "ROWS", "values": trimBlank(f.grids[sheet])})
		return
	default:
		http.Error(w, "unsupported", http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]interface{}{})
}

func (f *fakeSheets) update(sheet string, col, row int, rows [][]interface{}) {
	grid := f.grids[sheet]
	for i, values := range rows {
		r := row + i
		for len(grid) <= r {
			grid = append(grid, nil)
		}
		for j, v := range values {
			if v == nil {
				continue
			}
			c := col + j
			for len(grid[r]) <= c {
				grid[r] = append(grid[r], "")
			}
			grid[r][c] = v
		}
	}
	f.grids[sheet] = grid
}

func (f *fakeSheets) batchUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Requests []struct {
			DeleteDimension struct {
				Range struct {
					SheetID    int64 `json:"sheetId"`
					StartIndex int   `json:"startIndex"`
					EndIndex   int   `json:"endIndex"`
				} `json:"range"`
			} `json:"deleteDimension"`
		} `json:"requests"`
	}
	json.NewDecoder(r.Body).Decode(&req)
	for _, q := range req.Requests {
		rg := q.DeleteDimension.Range
		for title, id := range f.ids {
			if id != rg.SheetID {
				continue
			}
			grid := f.grids[title]
			if rg.EndIndex <= len(grid) {
				f.grids[title] = append(grid[:rg.StartIndex:rg.StartIndex], grid[rg.EndIndex:]...)
			}
		}
	}
	writeJSON(w, map[string]interface{}{})
}

func (f *fakeSheets) spreadsheet(w http.ResponseWriter) {
	var sheets []map[string]interface{}
	for title, id := range f.ids {
		sheets = append(sheets, map[string]interface{}{
			"properties": map[string]interface{}{"sheetId": id, "title": title},
		})
	}
	writeJSON(w, map[string]interface{}{"sheets": sheets})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func decodeRows(r *http.Request) [][]interface{} {
	var body struct {
		Values [][]interface{} `json:"values"`
	}
	json.NewDecoder(r.Body).Decode(&body)
	return body.Values
}

func trimBlank(grid [][]interface{}) [][]interface{} {
	for len(grid) > 0 && isBlankRow(grid[len(grid)-1]) {
		grid = grid[:len(grid)-1]
	}
	return grid
}

// parseA1 splits "'Title'!B3" into the title and zero-based column and row.
func parseA1(rng string) (string, int, int) {
	title, cell := rng, ""
	if i := strings.LastIndex(rng, "!"); i >= 0 {
		title, cell = rng[:i], rng[i+1:]
	}
	title = strings.ReplaceAll(strings.Trim(title, "'"), "''", "'")
	if cell == "" {
		return title, 0, 0
	}

	col, i := 0, 0
	for i < len(cell) && cell[i] >= 'A' && cell[i] <= 'Z' {
		col = col*26 + int(cell[i]-'A'+1)
		i++
	}
	row, _ := strconv.Atoi(cell[i:])
	return title, col - 1, row - 1
}

func newTestClient(t *testing.T, fake *fakeSheets, maxRetries int) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), Config{
		SpreadsheetID: "spreadsheet-1",
		Endpoint:      srv.URL + "/",
		MaxRetries:    maxRetries,
		Backoff:       time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}
