// Package schedule provides the recurring schedules that drive periodic
// connectivity probes and queue flushes.
//
// This package includes:
//   - Schedule interface for computing the next run time
//   - Every() for fixed-interval schedules
//   - Cron() for cron expression-based schedules
//   - Parse() accepting either a duration ("15s") or a cron expression
//   - Run() which calls a function on every tick of a Schedule
package schedule
