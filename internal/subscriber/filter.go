package subscriber

import "github.com/ducktracker/server/internal/broadcast"

// mergeNewPublicTags folds any newly announced public tags into the
// subscriber's effective filter, for auto-subscribed subscribers only,
// before filtering is applied — so a session created after this
// subscriber connected is visible immediately, per §4.8.
func (p *Pipeline) mergeNewPublicTags(env broadcast.Envelope) {
	for _, c := range env.Update.Changes {
		if c.Kind != broadcast.ChangeAddFetch {
			continue
		}
		for _, pub := range c.Public {
			p.tags[pub] = struct{}{}
		}
	}
}

// filterAndRewrite implements §4.8's per-update filter+rewrite step.
// Returns the rewritten update and whether it should be delivered at all
// (false means: drop this update entirely).
func (p *Pipeline) filterAndRewrite(env broadcast.Envelope) (broadcast.Update, bool) {
	shared := env.Context.Intersects(p.tags)
	if !shared && !env.Context.IsHeartbeat {
		return broadcast.Update{}, false
	}

	var kept []broadcast.Change
	for _, c := range env.Update.Changes {
		switch c.Kind {
		case broadcast.ChangeReset:
			kept = append(kept, c)

		case broadcast.ChangeAddFetch:
			rewritten := make(map[uint32]broadcast.Fetch)
			for id, f := range c.Fetches {
				restricted := intersectNames(f.Tags, p.tags)
				if len(restricted) == 0 {
					continue
				}
				rf := f
				rf.Tags = restricted
				rewritten[id] = rf
			}
			kept = append(kept, broadcast.AddFetchChange(rewritten, c.Public))

		case broadcast.ChangeAdd:
			if shared {
				kept = append(kept, c)
			}

		case broadcast.ChangeExpireFetch:
			if shared {
				kept = append(kept, c)
			}
		}
	}

	if len(kept) == 0 && !env.Context.IsHeartbeat {
		return broadcast.Update{}, false
	}

	return broadcast.Update{Meta: env.Update.Meta, Changes: kept}, true
}

func intersectNames(names []string, set map[string]struct{}) []string {
	var out []string
	for _, n := range names {
		if _, ok := set[n]; ok {
			out = append(out, n)
		}
	}
	return out
}
