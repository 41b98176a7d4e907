// Package subagent is the process shell shared by every Nexus Health
// capability provider.
//
// A SubAgent owns one gRPC capability server, an optional health and metrics
// HTTP server and the observability setup of the process. Providers only
// register skills:
//
//	agent, err := subagent.New(&subagent.Config{
//	    ServiceName: "hospital",
//	    Addr:        ":8000",
//	    HealthPort:  "8080",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	agent.MustAddSkill("doctor_agent", "Finds doctors in a US state.", doctorHandler)
//
//	if err := agent.Run(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
//
// Every handler is wrapped with a span named agent.<service>.handle and with
// start, completion and failure log records. A handler error or panic is
// reported to the caller as a remote execution failure and the process
// keeps serving.
//
// Run blocks until its context is canceled or the process receives SIGINT or
// SIGTERM, then stops accepting calls and waits for in-flight ones.
package subagent
