// Package httpapi is the operator's HTTP gateway. Every route except
// /healthz requires an X-Api-Key that parses as a UUID and is in the
// configured allow-set. Handlers translate requests into facility
// operations under the store lock.
package httpapi

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"supersorting.ai/internal/config"
	"supersorting.ai/internal/facility"
	"supersorting.ai/internal/persistence/indexdb"
	"supersorting.ai/internal/protocol"
	"supersorting.ai/internal/routing"
	"supersorting.ai/internal/tick"
)

// Index is the read-model behind /data/ticks and /data/events.
type Index interface {
	RecentTicks(ctx context.Context, limit int) ([]indexdb.TickRow, error)
	RecentEvents(ctx context.Context, agent string, limit int) ([]facility.Event, error)
}

type Options struct {
	Store   *facility.Store
	Planner *routing.Planner
	Config  config.Config

	// Metrics reports scheduler progress; nil reports zero values.
	Metrics func() tick.Metrics
	// Index, Stream and SnapshotDir are optional.
	Index       Index
	Stream      http.Handler
	SnapshotDir string

	Logger *log.Logger
	Clock  func() time.Time
	NewID  func() string
}

type Server struct {
	store   *facility.Store
	planner *routing.Planner
	cfg     config.Config
	keys    map[uuid.UUID]bool
	metrics func() tick.Metrics
	index   Index
	stream  http.Handler
	snapDir string
	log     *log.Logger
	now     func() time.Time
	newID   func() string
}

func New(opts Options) *Server {
	s := &Server{
		store:   opts.Store,
		planner: opts.Planner,
		cfg:     opts.Config,
		keys:    opts.Config.APIKeys(),
		metrics: opts.Metrics,
		index:   opts.Index,
		stream:  opts.Stream,
		snapDir: opts.SnapshotDir,
		log:     opts.Logger,
		now:     opts.Clock,
		newID:   opts.NewID,
	}
	if s.planner == nil {
		s.planner = routing.NewPlanner(opts.Config.Pathfinding())
	}
	if s.metrics == nil {
		s.metrics = func() tick.Metrics { return tick.Metrics{} }
	}
	if s.log == nil {
		s.log = log.New(io.Discard, "", 0)
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// Handler returns the full gateway: access log, trailing-slash trim,
// permissive CORS, then the API-key guard in front of the route groups.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	s.agentRoutes(api)
	s.adminRoutes(api)
	s.automationRoutes(api)
	s.dataRoutes(api)

	root := http.NewServeMux()
	root.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	root.Handle("/", s.requireAPIKey(api))

	return s.accessLog(trimSlash(cors(root)))
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(protocol.HeaderAPIKey)
		if key == "" && r.URL.Path == "/data/stream" {
			// Browsers cannot set headers on a websocket handshake.
			key = r.URL.Query().Get("api_key")
		}
		id, err := uuid.Parse(strings.TrimSpace(key))
		if err != nil || !s.keys[id] {
			writeError(rw, http.StatusUnauthorized, protocol.ErrUnauthorized, "missing or unknown api key")
			return
		}
		next.ServeHTTP(rw, r)
	})
}

func trimSlash(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if p := r.URL.Path; len(p) > 1 && strings.HasSuffix(p, "/") {
			r.URL.Path = strings.TrimRight(p, "/")
			if r.URL.Path == "" {
				r.URL.Path = "/"
			}
		}
		next.ServeHTTP(rw, r)
	})
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		h := rw.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Headers", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			rw.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(rw, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// Hijack lets websocket upgrades pass through the access log.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("hijack not supported")
	}
	if r.status == 0 {
		r.status = http.StatusSwitchingProtocols
	}
	return hj.Hijack()
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: rw}
		next.ServeHTTP(rec, r)
		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		s.log.Printf("%s %s %d %dB %s agent=%q", r.Method, r.URL.Path, status, rec.bytes, time.Since(start).Round(time.Microsecond), r.Header.Get(protocol.HeaderAgentID))
	})
}
