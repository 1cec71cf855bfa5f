/*
Package resilience provides a circuit breaker for outbound fetches.

A Breaker moves between three states:

	Closed --[FailureThreshold failures]-> Open --[Cooldown]-> Half-Open --[Probes successes]-> Closed
	                                                               |
	                                                           [failure]
	                                                               v
	                                                             Open

A Group holds one breaker per key (the fetcher uses the request host), so a
site that keeps failing is short-circuited without affecting other sites.

	group := resilience.NewGroup(resilience.Settings{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
	})
	err := group.Do("fablab.example.org", func() error {
		return fetch()
	})
*/
package resilience
