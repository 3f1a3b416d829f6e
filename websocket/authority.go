package websocket

import (
	"github.com/sirupsen/logrus"
)

// Host authority and active-device authority follow the same single-writer
// pattern; every transfer goes through here so both leave the same audit
// trail.
func auditAuthorityTransfer(scope string, key interface{}, from, to interface{}) {
	logrus.WithFields(logrus.Fields{
		"scope": scope,
		"key":   key,
		"from":  from,
		"to":    to,
	}).Info("authority transferred")
}
