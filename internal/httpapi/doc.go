// Package httpapi exposes the rundown over HTTP.
//
// Routes:
//
//	GET    /control                        rundown items for external controllers
//	PATCH  /control                        apply an inbound patch batch
//	GET    /rundown/{collection}           rows in order
//	POST   /rundown/{collection}           insert a row at the front
//	POST   /rundown/{collection}/move      move a row next to another
//	POST   /rundown/{collection}/{id}/duplicate
//	PATCH  /rundown/{collection}/{id}      set cells (status drives dispatch)
//	DELETE /rundown/{collection}/{id}
//	POST   /rundown/rundown/{id}/push      resend a row to the renderer
//	GET    /connections                    imported connections
//	GET    /events                         websocket feed
//	GET    /metrics                        Prometheus exposition
//	GET    /healthz
package httpapi
