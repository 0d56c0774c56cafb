package behaviorsync

import (
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/trustsignal/behaviorsync/internal"
	"github.com/trustsignal/behaviorsync/pubsub"
	"github.com/trustsignal/behaviorsync/state"
)

// ProfileBuilder keeps bsync_profiles in step with ingested records. It reacts
// to BehaviorDataIngested payloads and rebuilds the affected user's profile
// from their full history.
type ProfileBuilder struct {
	storage  *state.Storage
	notifier pubsub.Notifier
	sub      *pubsub.IngestSub
}

func NewProfileBuilder(storage *state.Storage, listener pubsub.Listener, notifier pubsub.Notifier) *ProfileBuilder {
	b := &ProfileBuilder{
		storage:  storage,
		notifier: notifier,
	}
	b.sub = pubsub.NewIngestSub(listener, b)
	return b
}

func (b *ProfileBuilder) Listen() {
	go func() {
		defer internal.ReportPanicsToSentry()
		err := b.sub.Listen()
		if err != nil {
			logger.Err(err).Msg("Failed to listen for ingest messages")
			sentry.CaptureException(err)
		}
	}()
}

func (b *ProfileBuilder) Teardown() {
	b.sub.Teardown()
}

func (b *ProfileBuilder) OnBehaviorDataIngested(p *pubsub.BehaviorDataIngested) {
	_, err := b.storage.RebuildProfile(p.UserID, time.Now().UnixMilli())
	if err != nil {
		logger.Err(err).Str("user", p.UserID).Msg("failed to rebuild profile")
		sentry.CaptureException(err)
		return
	}
	if err := b.notifier.Notify(pubsub.ChanIngest, &pubsub.ProfileRebuilt{UserID: p.UserID}); err != nil {
		logger.Err(err).Str("user", p.UserID).Msg("failed to notify profile rebuild")
	}
}

func (b *ProfileBuilder) OnProfileRebuilt(p *pubsub.ProfileRebuilt) {
	// produced by us, consumed by downstream scorers
}
