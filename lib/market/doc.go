// Package market contains the value objects exchanged with the gateway: tradeable
// instruments (Contract), the parameters of a historical bar request (BarSize,
// WhatToShow, Duration, DateFormat) and the data that comes back (Bar, AccountValue).
//
// The types are plain data. Encoding them into protocol fields is done by the
// serializer package, which keeps this package free of any wire concerns.
package market
