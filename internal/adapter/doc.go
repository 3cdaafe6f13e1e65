/*
Package adapter wires the visitor function together.

It builds, once per process, the pieces every invocation shares:

	config.Configuration
	      │
	      ▼
	awsclient.ClientManager ──► DynamoDB, EC2, SNS clients
	      │
	      ├──► counter.DynamoStore ──► counter.Service ─┐
	      ├──► renewal.EC2Controller ─┐                 │
	      └──► renewal.SNSNotifier ───┴► renewal.Service┤
	                                                    ▼
	                                              router.Router

Both Lambda entry points and the visitorctl CLI obtain their router and
services from an Adapter. NewWithClients accepts prebuilt clients, which is
how tests and local tooling substitute fakes or a local endpoint.

A nil metrics recorder is wired through when server.enable_metrics is false;
every component treats it as a no-op.
*/
package adapter
