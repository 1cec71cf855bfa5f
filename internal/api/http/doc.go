/*
Package http provides the gin handlers for the scraper API.

Routes:

	GET  /             service banner
	GET  /health       liveness, site count and request totals
	GET  /v1/sites     configured sites
	POST /v1/extract   extract fields from HTML in the request body
	POST /v1/scrape    fetch a configured facility URL and extract it
	GET  /v1/history   archived runs for ?url= over the last ?days=

Pipeline errors map to statuses: invalid URLs 400, unknown sites 404,
unparseable HTML 422, upstream failures 502 and upstream timeouts 504.
*/
package http
