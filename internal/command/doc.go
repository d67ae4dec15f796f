// Package command defines the drawing commands a guest can issue and the
// recorder that collects them.
//
// Guest calls never act immediately. Each call appends an Event to the
// instance's queue in call order; once per tick the lifecycle manager drains
// the queue and hands the events to the scene builder.
package command
