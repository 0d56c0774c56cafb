package behaviorsync

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/jellydator/ttlcache/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/hlog"
	"github.com/tidwall/gjson"

	"github.com/trustsignal/behaviorsync/capture"
	"github.com/trustsignal/behaviorsync/internal"
	"github.com/trustsignal/behaviorsync/pubsub"
	"github.com/trustsignal/behaviorsync/query"
	"github.com/trustsignal/behaviorsync/state"
)

const (
	// How long a finalized snapshot stays inspectable on the alert channel
	// after ingest, without hitting the database.
	snapshotCacheTTL = 30 * time.Minute

	// Upper bound on request bodies. Motion-heavy sessions are large but a
	// record at the aggregator caps is still well under this.
	maxRequestBytes = 8 * 1024 * 1024

	numIngestWorkers = 16
)

// Handler implements the ingest and back-office query API. Ingested records
// are persisted on the request path so the client's retry machinery sees
// failures; the post-insert fan-out (user upsert, pubsub) runs on a bounded
// worker pool instead of holding up capture clients.
type Handler struct {
	Storage   *state.Storage
	Publisher pubsub.Notifier

	pool *internal.WorkerPool
	// sessionID -> most recently flushed record, so alert reviewers can pull
	// the finalized snapshot without a DB round-trip.
	snapshots *ttlcache.Cache[string, *capture.BehaviorData]

	numIngested prometheus.Counter
}

func NewHandler(store *state.Storage, pub pubsub.Notifier, enablePrometheus bool) *Handler {
	h := &Handler{
		Storage:   store,
		Publisher: pub,
		pool:      internal.NewWorkerPool(numIngestWorkers),
		snapshots: ttlcache.New[string, *capture.BehaviorData](
			ttlcache.WithTTL[string, *capture.BehaviorData](snapshotCacheTTL),
		),
	}
	h.pool.Start()
	go h.snapshots.Start()
	if enablePrometheus {
		h.addPrometheusMetrics()
	}
	return h
}

func (h *Handler) Teardown() {
	h.pool.Stop()
	h.snapshots.Stop()
	h.Storage.Teardown()
	if h.numIngested != nil {
		prometheus.Unregister(h.numIngested)
	}
}

func (h *Handler) addPrometheusMetrics() {
	h.numIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "behaviorsync",
		Subsystem: "api",
		Name:      "num_ingested",
		Help:      "Number of behavior records accepted for persistence",
	})
	prometheus.MustRegister(h.numIngested)
}

// Ingest accepts one flushed BehaviorData record. The record is immutable
// once transmitted: replays of an already stored ID are acknowledged but not
// rewritten.
func (h *Handler) Ingest(w http.ResponseWriter, req *http.Request) {
	if req.Method != "POST" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx, span := internal.StartSpan(req.Context(), "Ingest")
	defer span.End()

	body, err := io.ReadAll(io.LimitReader(req.Body, maxRequestBytes))
	if err != nil {
		h.respond(w, req, nil, &internal.HandlerError{StatusCode: 400, Err: err})
		return
	}
	// cheap identity checks before decoding the (potentially large) payload
	recordID := gjson.GetBytes(body, "id").Str
	sessionID := gjson.GetBytes(body, "sessionId").Str
	userID := gjson.GetBytes(body, "userId").Str
	if recordID == "" || sessionID == "" || userID == "" {
		h.respond(w, req, nil, &internal.HandlerError{
			StatusCode: 400,
			Err:        fmt.Errorf("id, sessionId and userId are required"),
		})
		return
	}
	var data capture.BehaviorData
	if err := json.Unmarshal(body, &data); err != nil {
		hlog.FromRequest(req).Err(err).Msg("failed to decode ingest body")
		h.respond(w, req, nil, &internal.HandlerError{StatusCode: 400, Err: err})
		return
	}

	internal.SetRequestContextUserID(ctx, data.UserID)
	motion, touch, keys := 0, 0, 0
	for _, p := range data.MotionPatterns {
		motion += len(p.Samples)
	}
	for _, p := range data.TouchPatterns {
		touch += len(p.Events)
	}
	for _, p := range data.TypingPatterns {
		keys += len(p.Keystrokes)
	}
	internal.SetRequestContextRecordInfo(ctx, data.SessionID, data.ID, motion, touch, keys)

	// the insert happens before the response: a client that sees a 2xx drops
	// the record from its pending set, so acknowledging an unpersisted record
	// would lose it for good. A 5xx keeps it in the client's retry loop.
	now := time.Now().UnixMilli()
	inserted, err := h.Storage.BehaviorDataTable.Insert(&data, now)
	if err != nil {
		h.respond(w, req, nil, err)
		return
	}

	h.snapshots.Set(data.SessionID, &data, ttlcache.DefaultTTL)
	if h.numIngested != nil {
		h.numIngested.Inc()
	}
	if inserted {
		// fan-out is best-effort and runs off the request path
		log := hlog.FromRequest(req).With().
			Str("record", data.ID).Str("session", data.SessionID).Str("user", data.UserID).Logger()
		h.pool.Queue(func() {
			if err := h.Storage.UsersTable.Upsert(data.UserID, "", now); err != nil {
				log.Err(err).Msg("failed to upsert user")
			}
			if err := h.Publisher.Notify(pubsub.ChanIngest, &pubsub.BehaviorDataIngested{
				RecordID:  data.ID,
				SessionID: data.SessionID,
				UserID:    data.UserID,
				Timestamp: data.Timestamp,
			}); err != nil {
				log.Err(err).Msg("failed to notify ingest listeners")
			}
		})
	}

	h.respond(w, req, struct{}{}, nil)
}

// RaiseAlert records an anomaly alert against a session. The finalized
// snapshot for that session stays inspectable via SessionSnapshot.
func (h *Handler) RaiseAlert(w http.ResponseWriter, req *http.Request) {
	if req.Method != "POST" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(req.Body, maxRequestBytes))
	if err != nil {
		h.respond(w, req, nil, &internal.HandlerError{StatusCode: 400, Err: err})
		return
	}
	sessionID := gjson.GetBytes(body, "sessionId").Str
	userID := gjson.GetBytes(body, "userId").Str
	reason := gjson.GetBytes(body, "reason").Str
	if sessionID == "" || reason == "" {
		h.respond(w, req, nil, &internal.HandlerError{
			StatusCode: 400,
			Err:        fmt.Errorf("sessionId and reason are required"),
		})
		return
	}
	if userID == "" {
		// backfill from the finalized snapshot if the caller only knows the session
		if item := h.snapshots.Get(sessionID); item != nil {
			userID = item.Value().UserID
		}
	}
	id, err := h.Storage.AlertsTable.Insert(sessionID, userID, reason, time.Now().UnixMilli())
	if err != nil {
		h.respond(w, req, nil, err)
		return
	}
	if err := h.Publisher.Notify(pubsub.ChanAlerts, &pubsub.AlertRaised{
		SessionID: sessionID,
		UserID:    userID,
		Reason:    reason,
	}); err != nil {
		hlog.FromRequest(req).Err(err).Msg("failed to notify alert listeners")
	}
	h.respond(w, req, struct {
		ID int64 `json:"id"`
	}{id}, nil)
}

// SessionSnapshot returns the most recently flushed record for a session,
// served from the TTL cache when the ingest is fresh, otherwise from storage.
func (h *Handler) SessionSnapshot(w http.ResponseWriter, req *http.Request) {
	if req.Method != "GET" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sessionID := mux.Vars(req)["sessionID"]
	if item := h.snapshots.Get(sessionID); item != nil {
		h.respond(w, req, item.Value(), nil)
		return
	}
	records, err := h.Storage.BehaviorDataTable.SelectBySessionID(sessionID)
	if err != nil {
		h.respond(w, req, nil, err)
		return
	}
	if len(records) == 0 {
		h.respond(w, req, nil, &internal.HandlerError{
			StatusCode: 404,
			Err:        fmt.Errorf("no snapshot for session %s", sessionID),
		})
		return
	}
	h.respond(w, req, records[len(records)-1], nil)
}

// UserProfile returns the behaviour profile derived from a user's history.
func (h *Handler) UserProfile(w http.ResponseWriter, req *http.Request) {
	if req.Method != "GET" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	userID := mux.Vars(req)["userID"]
	profile, err := h.Storage.ProfilesTable.Select(userID)
	if err != nil {
		h.respond(w, req, nil, err)
		return
	}
	if profile == nil {
		h.respond(w, req, nil, &internal.HandlerError{
			StatusCode: 404,
			Err:        fmt.Errorf("no profile for user %s", userID),
		})
		return
	}
	h.respond(w, req, profile, nil)
}

func (h *Handler) QuerySessions(w http.ResponseWriter, req *http.Request) {
	queryCollection(h, w, req, h.Storage.BehaviorDataTable.SelectPage)
}

func (h *Handler) QueryTransactions(w http.ResponseWriter, req *http.Request) {
	queryCollection(h, w, req, h.Storage.TransactionsTable.SelectPage)
}

func (h *Handler) QueryUsers(w http.ResponseWriter, req *http.Request) {
	queryCollection(h, w, req, h.Storage.UsersTable.SelectPage)
}

// queryCollection is the shared paginated read path behind the three query
// endpoints. Selection errors are reported as 400s: the overwhelmingly common
// cause is a sort field outside the collection's whitelist.
func queryCollection[T any](h *Handler, w http.ResponseWriter, req *http.Request, selectPage func(query.Params) ([]T, int, error)) {
	if req.Method != "POST" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	_, span := internal.StartSpan(req.Context(), "QueryCollection")
	defer span.End()

	var params query.Params
	if req.Body != nil {
		defer req.Body.Close()
		if err := json.NewDecoder(req.Body).Decode(&params); err != nil {
			h.respond(w, req, nil, &internal.HandlerError{StatusCode: 400, Err: err})
			return
		}
	}
	if params.Pagination.Page <= 0 {
		params.Pagination.Page = 1
	}
	if params.Pagination.PageSize <= 0 {
		params.Pagination.PageSize = 10
	}
	rows, total, err := selectPage(params)
	if err != nil {
		h.respond(w, req, nil, &internal.HandlerError{StatusCode: 400, Err: err})
		return
	}
	if rows == nil {
		rows = []T{}
	}
	h.respond(w, req, query.Response[T]{
		Data:       rows,
		Pagination: query.NewPageInfo(params.Pagination.Page, params.Pagination.PageSize, total),
	}, nil)
}

func (h *Handler) respond(w http.ResponseWriter, req *http.Request, v interface{}, err error) {
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		herr, ok := err.(*internal.HandlerError)
		if !ok {
			herr = &internal.HandlerError{
				StatusCode: 500,
				Err:        err,
			}
		}
		if herr.StatusCode >= 500 {
			internal.GetSentryHubFromContextOrDefault(req.Context()).CaptureException(herr.Err)
			hlog.FromRequest(req).Err(herr.Err).Msg("request failed")
		}
		w.WriteHeader(herr.StatusCode)
		w.Write(herr.JSON())
		return
	}
	b, mErr := json.Marshal(v)
	if mErr != nil {
		w.WriteHeader(500)
		w.Write(internal.HandlerError{StatusCode: 500, Err: mErr}.JSON())
		return
	}
	w.WriteHeader(200)
	w.Write(b)
}
