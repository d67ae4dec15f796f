/*
Package sandbox runs untrusted WebAssembly guests under wazero.

# Overview

A guest is a core WebAssembly module that speaks the portal:canvas world
(see Canvas). It imports drawing functions from the "portal" host module
and exports two entry points:

  - setup: called once after the instance becomes active
  - update: called every tick

Each Instance owns a private wazero runtime, its linear memory and a
command.Recorder. Host functions never draw; they append to the recorder and
the tick loop drains it.

# Loading

Loader.Load runs four stages, any of which fails with a *LoadError:

 1. compile: decode and validate the binary under the memory limit
 2. link: bind the host module (and WASI when imported) to a fresh recorder
 3. contract: check imports and exports against the world
 4. instantiate: create the module without running any start function

# Capabilities

The guest can reach only the ten canvas functions. WASI is available for
language runtimes that expect it, but no filesystem, arguments, environment
or sockets are configured: only the wall clock, the monotonic clock and a
crypto random source.

# Failures

A trap, an out-of-range string or an exceeded call timeout surfaces as a
*TrapError from Setup or Update. A timeout closes the module, so that
instance fails every later call until it is replaced.
*/
package sandbox
