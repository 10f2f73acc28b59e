package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/mux"

	"github.com/wbrown/janus-tabular/tabular"
	"github.com/wbrown/janus-tabular/tabular/catalog"
	"github.com/wbrown/janus-tabular/tabular/executor"
	"github.com/wbrown/janus-tabular/tabular/ingest"
	"github.com/wbrown/janus-tabular/tabular/storage"
)

// maxBody bounds request bodies other than bulk loads
const maxBody = 16 << 20

// datasetHandler manages datasets, their rows and their queries
type datasetHandler struct {
	s         *Server
	formatter *executor.TableFormatter
}

func installDatasetHandler(s *Server) *datasetHandler {
	h := &datasetHandler{s: s, formatter: executor.NewTableFormatter()}
	s.HandleFunc("/v1/datasets", h.list).Methods("GET")
	s.HandleFunc("/v1/datasets", h.create).Methods("POST")
	s.HandleFunc("/v1/datasets/{id}", h.get).Methods("GET")
	s.HandleFunc("/v1/datasets/{id}", h.put).Methods("PUT")
	s.HandleFunc("/v1/datasets/{id}", h.delete).Methods("DELETE")
	s.HandleFunc("/v1/datasets/{id}/rows", h.recordRows).Methods("POST")
	s.HandleFunc("/v1/datasets/{id}/load", h.load).Methods("POST")
	s.HandleFunc("/v1/datasets/{id}/commit", h.commit).Methods("POST")
	s.HandleFunc("/v1/datasets/{id}/query", h.query).Methods("GET")
	return h
}

func (h *datasetHandler) list(w http.ResponseWriter, req *http.Request) (interface{}, error) {
	return h.s.catalog.Stats(), nil
}

func (h *datasetHandler) create(w http.ResponseWriter, req *http.Request) (interface{}, error) {
	cfg, err := readConfig(req)
	if err != nil {
		return nil, err
	}
	d, err := h.s.catalog.Create(req.Context(), cfg)
	if err != nil {
		return nil, err
	}
	return created{d.Stats()}, nil
}

func (h *datasetHandler) put(w http.ResponseWriter, req *http.Request) (interface{}, error) {
	cfg, err := readConfig(req)
	if err != nil {
		return nil, err
	}
	d, err := h.s.catalog.Put(req.Context(), mux.Vars(req)["id"], cfg)
	if err != nil {
		return nil, err
	}
	return created{d.Stats()}, nil
}

func (h *datasetHandler) get(w http.ResponseWriter, req *http.Request) (interface{}, error) {
	d, err := h.s.catalog.Get(mux.Vars(req)["id"])
	if err != nil {
		return nil, err
	}
	return d.Stats(), nil
}

func (h *datasetHandler) delete(w http.ResponseWriter, req *http.Request) (interface{}, error) {
	return nil, h.s.catalog.Delete(mux.Vars(req)["id"])
}

// recordRows accepts one row object or an array of them
func (h *datasetHandler) recordRows(w http.ResponseWriter, req *http.Request) (interface{}, error) {
	d, err := h.s.catalog.Get(mux.Vars(req)["id"])
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(io.LimitReader(req.Body, maxBody))
	if err != nil {
		return nil, err
	}

	var rows []executor.Row
	if trimmed := firstByte(body); trimmed == '[' {
		err = json.Unmarshal(body, &rows)
	} else {
		var row executor.Row
		err = json.Unmarshal(body, &row)
		rows = []executor.Row{row}
	}
	if err != nil {
		if tabular.KindOf(err) == tabular.KindInternal {
			err = tabular.InvalidArgumentf("malformed rows: %v", err)
		}
		return nil, err
	}

	batches := make([]storage.Batch, len(rows))
	facts := 0
	for i, r := range rows {
		batches[i] = storage.Batch{Entity: r.Name, Cells: r.Columns}
		facts += len(r.Columns)
	}
	if err := d.RecordBatches(batches); err != nil {
		return nil, err
	}
	return map[string]int{"rows": len(rows), "facts": facts}, nil
}

// load streams a comma separated body into the dataset. ?timestamp= (RFC 3339)
// stamps the facts and ?commit=true publishes them at the end.
func (h *datasetHandler) load(w http.ResponseWriter, req *http.Request) (interface{}, error) {
	d, err := h.s.catalog.Get(mux.Vars(req)["id"])
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()

	ts := time.Now()
	if raw := q.Get("timestamp"); raw != "" {
		if ts, err = time.Parse(time.RFC3339Nano, raw); err != nil {
			return nil, tabular.InvalidArgumentf("bad timestamp %q: %v", raw, err)
		}
	}
	commit, err := queryBool(q.Get("commit"))
	if err != nil {
		return nil, err
	}
	maxLines, err := queryInt(q.Get("maxLines"), "maxLines", tabular.InvalidArgumentf)
	if err != nil {
		return nil, err
	}

	l := &ingest.Loader{Sink: d, Timestamp: ts, MaxLines: maxLines, Commit: commit}
	return l.Load(req.Context(), ingest.NewReaderSource(req.Body))
}

func (h *datasetHandler) commit(w http.ResponseWriter, req *http.Request) (interface{}, error) {
	d, err := h.s.catalog.Get(mux.Vars(req)["id"])
	if err != nil {
		return nil, err
	}
	epoch, err := d.Commit()
	if err != nil {
		return nil, err
	}
	return map[string]uint64{"epoch": epoch}, nil
}

// query answers ?where=&orderBy=&limit=&offset= with JSON rows, or with a
// markdown table when format=table. filter= is accepted in place of where=.
func (h *datasetHandler) query(w http.ResponseWriter, req *http.Request) (interface{}, error) {
	v := req.URL.Query()
	q := executor.Query{Where: v.Get("where"), OrderBy: v.Get("orderBy")}
	if q.Where == "" {
		q.Where = v.Get("filter")
	}

	var err error
	if q.Limit, err = queryInt(v.Get("limit"), "limit", tabular.InvalidQueryf); err != nil {
		return nil, err
	}
	if q.Offset, err = queryInt(v.Get("offset"), "offset", tabular.InvalidQueryf); err != nil {
		return nil, err
	}

	rows, err := h.s.catalog.Query(req.Context(), mux.Vars(req)["id"], q)
	if err != nil {
		return nil, err
	}

	switch format := v.Get("format"); format {
	case "", "json":
		return rows, nil
	case "table":
		return rawText(h.formatter.FormatRows(rows)), nil
	case "facts":
		return rawText(h.formatter.FormatFacts(rows)), nil
	default:
		return nil, tabular.InvalidQueryf("unknown format %q", format)
	}
}

func readConfig(req *http.Request) (catalog.Config, error) {
	body, err := io.ReadAll(io.LimitReader(req.Body, maxBody))
	if err != nil {
		return catalog.Config{}, errors.Wrap(err, "failed to read config")
	}
	cfg, _, err := catalog.ParseConfig(body)
	return cfg, err
}

func queryInt(raw, name string, fail func(string, ...interface{}) error) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fail("%s must be an integer, got %q", name, raw)
	}
	return n, nil
}

func queryBool(raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, tabular.InvalidArgumentf("commit must be a boolean, got %q", raw)
	}
	return b, nil
}

func firstByte(body []byte) byte {
	for _, c := range body {
		switch c {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return c
	}
	return 0
}
