package internal

import (
	"context"

	"github.com/rs/zerolog"
)

type ctx string

var (
	ctxData ctx = "bsync_data"
)

// logging metadata for a single request
type data struct {
	userID        string
	sessionID     string
	recordID      string
	numMotion     int
	numTouch      int
	numKeystrokes int
}

// prepare a request context so it can carry ingest info
func RequestContext(ctx context.Context) context.Context {
	d := &data{
		numMotion:     -1,
		numTouch:      -1,
		numKeystrokes: -1,
	}
	return context.WithValue(ctx, ctxData, d)
}

// add the user ID to this request context. Need to have called RequestContext first.
func SetRequestContextUserID(ctx context.Context, userID string) {
	d := ctx.Value(ctxData)
	if d == nil {
		return
	}
	da := d.(*data)
	da.userID = userID
}

func SetRequestContextRecordInfo(ctx context.Context, sessionID, recordID string, numMotion, numTouch, numKeystrokes int) {
	d := ctx.Value(ctxData)
	if d == nil {
		return
	}
	da := d.(*data)
	da.sessionID = sessionID
	da.recordID = recordID
	da.numMotion = numMotion
	da.numTouch = numTouch
	da.numKeystrokes = numKeystrokes
}

func DecorateLogger(ctx context.Context, l *zerolog.Event) *zerolog.Event {
	d := ctx.Value(ctxData)
	if d == nil {
		return l
	}
	da := d.(*data)
	if da.userID != "" {
		l = l.Str("u", da.userID)
	}
	if da.sessionID != "" {
		l = l.Str("s", da.sessionID)
	}
	if da.recordID != "" {
		l = l.Str("r", da.recordID)
	}
	if da.numMotion >= 0 {
		l = l.Int("m", da.numMotion)
	}
	if da.numTouch >= 0 {
		l = l.Int("t", da.numTouch)
	}
	if da.numKeystrokes >= 0 {
		l = l.Int("k", da.numKeystrokes)
	}
	return l
}
