/*
Package types provides the shared type contracts of the weave runtime.

types is the lowest-level package and depends on no other weave package.
Records, schemas, actions, errors, and context propagation helpers shared
across the capability, credential, health, and delegation packages are
defined here to avoid circular imports.

Core types:

  - CapabilityServer: a tool endpoint record (transport, endpoint, status, cached catalog)
  - CredentialReference: a pointer to secret material (store id + retrieval params)
  - ExternalAgent: a networked peer agent
  - InternalAgent: an in-process agent within a graph
  - AgentRelation: a transfer/delegate edge between agents
  - Action: a callable handed to the agent invocation layer
  - ToolSchema: a catalog entry (name, description, raw input schema)
  - JSONSchema: schema definition and builders (NewObjectSchema etc.)
  - Error and ErrorCode: structured error taxonomy with retryability markers
  - Executor: minimal in-process agent execution contract

Context propagation: WithScope, WithConversationID, WithThreadID,
WithAgentID and WithTraceID carry call-scoped identity through the runtime;
credential stores use these values for templated retrieval.
*/
package types
