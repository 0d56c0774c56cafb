package behaviorsync

import (
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/trustsignal/behaviorsync/internal"
	"github.com/trustsignal/behaviorsync/pubsub"
	"github.com/trustsignal/behaviorsync/state"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger().Output(zerolog.ConsoleWriter{
	Out:        os.Stderr,
	TimeFormat: "15:04:05",
})

type Opts struct {
	// if true, publishes prometheus metrics for the API and the pubsub bus
	EnablePrometheus bool
}

// Setup creates the API handler and the profile builder, sharing one storage
// and one in-process bus. Callers own teardown ordering: builder first, then
// handler (which closes the storage).
func Setup(postgresURI string, opts Opts) (*Handler, *ProfileBuilder) {
	store := state.NewStorage(postgresURI)
	bus := pubsub.NewPubSub(64)
	var notifier pubsub.Notifier = bus
	if opts.EnablePrometheus {
		notifier = pubsub.NewPromNotifier(bus, "api")
	}
	h := NewHandler(store, notifier, opts.EnablePrometheus)
	builder := NewProfileBuilder(store, bus, notifier)
	builder.Listen()
	return h, builder
}

type server struct {
	chain []func(next http.Handler) http.Handler
	final http.Handler
}

func (s *server) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	h := s.final
	for i := range s.chain {
		h = s.chain[len(s.chain)-1-i](h)
	}
	h.ServeHTTP(w, req)
}

func allowCORS(next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Origin, X-Requested-With, Content-Type, Accept, Authorization")
		if req.Method == "OPTIONS" {
			w.WriteHeader(200)
			return
		}
		next.ServeHTTP(w, req)
	}
}

// newRouter wires the API paths to the handler.
func newRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/api/data/regular", allowCORS(http.HandlerFunc(h.Ingest)))
	r.Handle("/api/alert", allowCORS(http.HandlerFunc(h.RaiseAlert)))
	r.Handle("/api/sessions/query", allowCORS(http.HandlerFunc(h.QuerySessions)))
	r.Handle("/api/transactions/query", allowCORS(http.HandlerFunc(h.QueryTransactions)))
	r.Handle("/api/users/query", allowCORS(http.HandlerFunc(h.QueryUsers)))
	r.Handle("/api/sessions/{sessionID}/snapshot", allowCORS(http.HandlerFunc(h.SessionSnapshot)))
	r.Handle("/api/users/{userID}/profile", allowCORS(http.HandlerFunc(h.UserProfile)))
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// RunServer is the main entry point to the server
func RunServer(h *Handler, bindAddr string) {
	srv := &server{
		chain: []func(next http.Handler) http.Handler{
			hlog.NewHandler(logger),
			func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
					next.ServeHTTP(w, req.WithContext(internal.RequestContext(req.Context())))
				})
			},
			hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
				entry := hlog.FromRequest(r).Info().
					Str("method", r.Method).
					Int("status", status).
					Int("size", size).
					Dur("duration", duration).
					Str("path", r.URL.Path)
				internal.DecorateLogger(r.Context(), entry).Msg("")
			}),
			hlog.RemoteAddrHandler("ip"),
		},
		final: newRouter(h),
	}

	// Block forever
	logger.Info().Msgf("listening on %s", bindAddr)
	if err := http.ListenAndServe(bindAddr, srv); err != nil {
		logger.Fatal().Err(err).Msg("failed to listen and serve")
	}
}
