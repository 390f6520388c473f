// Package models contains the public data structures shared between the
// router, the provider adapters and the HTTP surface.
//
// The main entry points are:
//
//   - Chat:    a conversation consisting of ordered Messages.
//   - Message: a single chat message, optionally carrying tool calls,
//     the id of the call it answers, or citations.
//   - Call, Input: a tool call issued by a model.
//   - LLMTool, Specification, InputSchema, ParameterObject: types that
//     describe callable tools, compatible with Model Context Protocol
//     (MCP) style schemas.
//   - Chunk: one unit of the streamed response protocol.
package models
