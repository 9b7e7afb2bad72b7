package channel

import (
	"net/http"

	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"
)

// upgrader accepts any origin: the endpoint is only reachable from inside
// the cluster network (the Service fronting the controller is ClusterIP),
// grounded on the teacher's equivalent trust boundary at the ingress proxy.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// RunnerConnectPath is the HTTP path a runner dials to attach to its
// channel, naming the VM via query parameters (spec.md §2 [ADD] transport
// decision).
const RunnerConnectPath = "/vm-operator/v1/runners/connect"

// ConnectHandler upgrades an incoming HTTP request to a WebSocket and
// attaches it to the Channel named by the "namespace" and "name" query
// parameters, creating the channel if this is the first connection observed
// for that VM. One runnerConn is created per accepted connection and runs
// until the socket closes, at which point it detaches itself.
func (r *Registry) ConnectHandler(log logr.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		namespace := req.URL.Query().Get("namespace")
		name := req.URL.Query().Get("name")
		if namespace == "" || name == "" {
			http.Error(w, "namespace and name query parameters are required", http.StatusBadRequest)
			return
		}

		ws, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			log.Error(err, "websocket upgrade failed", "namespace", namespace, "name", name)
			return
		}

		ch := r.GetOrCreate(namespace, name)
		conn := newRunnerConn(ws, ch, r, log.WithValues("vm", namespace+"/"+name))
		ch.attach(conn)
		log.Info("runner connected", "vm", namespace+"/"+name)

		go conn.run()
	}
}
