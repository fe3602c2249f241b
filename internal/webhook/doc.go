// Package webhook implements the SMS echo webhook protocol independent of any
// HTTP library.
//
// A transport binding turns its native request into a Request and writes the
// returned Result back. Flow never touches the network itself apart from the
// outbound send.
//
// # Endpoints
//
//	POST /sms  {"from": "+1555", "to": "+1777", "body": "hi"}  (JSON or form)
//	POST /mdr  any JSON object
//
// Both carry an X-Telnyx-Signature header. In legacy single-endpoint mode only
// /sms is served.
//
// # Request Flow
//
//  1. Raw body captured before any decoding
//  2. Body decoded (400 "Invalid payload" on failure)
//  3. Signature header required (400 "Missing signature")
//  4. Signature recomputed over the raw bytes and compared in constant time
//     (400 "Invalid signature"; received and expected values are logged)
//  5. SMS only: echo sent to the original sender (502 "Echo failed")
//  6. 200 "Echo OK" or "MDR OK"
//
// Unknown paths yield 404 without reading the body. Oversized bodies yield 413.
//
// # Example Usage
//
//	cfg, _ := webhook.FromGlobalConfig(globalCfg)
//	flow, err := webhook.NewFlow(cfg, sender.New(sender.Config{}, logger), logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	res := flow.Handle(ctx, webhook.Request{
//		Endpoint:  webhook.EndpointSMS,
//		Signature: r.Header.Get(signature.Header),
//		RawBody:   body,
//	})
package webhook
