// Package framework contains the low-level types shared by the rest of the test runner:
// test identifiers, outcomes and aggregated results, the capabilities that a module
// loader and test suite must provide, and the loggers used for progress and debug output.
//
// The general model is:
//
// 1. An interpreter loads source modules and their test modules. A loaded module is a
// Module, which can be reloaded in place; a loaded test module yields a Suite.
//
// 2. Running a Suite reports each test case's lifecycle and outcome into a ResultSink.
// The Aggregator is the ResultSink used for a whole run: it accumulates outcomes,
// timings, and coverage misses, and tells a TestLogger about progress.
//
// 3. Results is the read-only view of everything the Aggregator collected, and is what
// the reporting code works from.
//
// The code that knows how to talk to a particular interpreter lives in the worker
// package; this package knows nothing about processes or wire formats.
package framework
