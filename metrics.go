package asyncgrpc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var rpcsStartedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "asyncgrpc_server_rpcs_started_total",
	Help: "counter of RPCs accepted by the server, by service and method",
}, []string{"service", "method"})

var rpcsHandledCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "asyncgrpc_server_rpcs_handled_total",
	Help: "counter of RPCs driven to completion by the server, by service, method and terminal status code",
}, []string{"service", "method", "code"})

var activeRpcsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "asyncgrpc_server_active_rpcs",
	Help: "gauge of currently live RPCs, by service",
}, []string{"service"})
