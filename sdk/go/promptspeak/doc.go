// Package promptspeak intercepts AI agent tool calls before they execute
// and decides whether each call is allowed, blocked or held.
//
// Two guard surfaces share one decision core:
//
//	// Single call: wrap one tool.
//	guarded := promptspeak.GovernedTool(sendEmail,
//	    promptspeak.WithOnBlocked(func(ev promptspeak.GovernanceEvent) { log.Print(ev.Reason) }))
//	out, err := guarded.Execute(ctx, input, promptspeak.CallOptions{})
//	if out.Interception != nil {
//	    // blocked or held; out.Result is the zero value
//	}
//
//	// Batch: filter the tool calls proposed by a generation step.
//	mw, err := promptspeak.NewMiddleware(promptspeak.WithMode(promptspeak.ModeStrict))
//	res, err := mw.WrapGenerate(ctx, doGenerate, mw.TransformParams(params))
//
// Guards built without an explicit engine share the process-wide
// DefaultHandle. Middleware instances own a private engine unless one is
// injected. The SDK links directly against internal packages. External
// users import github.com/ppiankov/promptspeak/sdk/go/promptspeak.
package promptspeak
