// Package model contains the data types shared by the orchestration engine.
//
// The building blocks live in sub-packages:
//
//   - task  – spawn requests, retry policies and dispatch results
//   - value – tagged variant used for task outputs and merged values
//   - errs  – error taxonomy
package model
