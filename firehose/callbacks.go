package firehose

// Callbacks is the Firehose adapter's public dispatch surface: a struct of
// optional per-event-kind handlers, matching the teacher's
// events.RepoStreamCallbacks shape rather than a single type-switch
// callback. Any nil field is simply not invoked for that event kind.
type Callbacks struct {
	Commit   func(*Commit) error
	Sync     func(*Sync) error
	Identity func(*Identity) error
	Account  func(*Account) error
	Info     func(*Info) error
}

// dispatch invokes the matching callback for ev, if one was registered.
func (c Callbacks) dispatch(ev *Event) error {
	switch {
	case ev.Commit != nil && c.Commit != nil:
		return c.Commit(ev.Commit)
	case ev.Sync != nil && c.Sync != nil:
		return c.Sync(ev.Sync)
	case ev.Identity != nil && c.Identity != nil:
		return c.Identity(ev.Identity)
	case ev.Account != nil && c.Account != nil:
		return c.Account(ev.Account)
	case ev.Info != nil && c.Info != nil:
		return c.Info(ev.Info)
	default:
		return nil
	}
}
