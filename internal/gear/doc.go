// Package gear collects the day's gear changes (blinkers, tongue ties and the
// like) for every Australian race meeting Punting Form knows about.
//
// Meetings are discovered from the meeting CSV and from the scratchings and
// track-condition feeds, since neither source is complete on its own. Each
// meeting's form CSV is then read race by race. The package also adapts the
// collector to the fetch capability the daily cron drives.
package gear
