// Package tap provides a client for consuming atproto events from a Tap
// channel, plus a client for Tap's companion HTTP admin API.
//
// The websocket client handles connection management, automatic
// reconnection with backoff, and per-event acknowledgment.
//
// Basic usage:
//
//	handler := func(ctx context.Context, ev *tap.Event) error {
//		switch payload := ev.Payload().(type) {
//		case *tap.RecordEvent:
//			fmt.Printf("record.Action: %s\n", payload.Action)
//			fmt.Printf("record.Collection: %s\n", payload.Collection)
//		case *tap.IdentityEvent:
//			fmt.Printf("identity.DID: %s\n", payload.DID)
//		}
//		return nil
//	}
//
//	ws, err := tap.NewWebsocket("wss://example.com", handler,
//		tap.WithLogger(slog.Default()),
//	)
//	if err != nil {
//		// handle error...
//	}
//
//	if err := ws.Run(ctx); err != nil {
//		// handle error...
//	}
//
// Acks are sent automatically for every event whose handler returns nil;
// pass [WithDisableAcks] to suppress them. A returned error withholds the
// ack, leaving the server to retry after its own timeout — it does not
// change delivery to the local dispatcher. To distinguish a permanent
// failure from one the server's retry might fix in logs, wrap it with
// [NewNonRetryableError].
package tap
