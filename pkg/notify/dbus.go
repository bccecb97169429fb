package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	notificationsDest  = "org.freedesktop.Notifications"
	notificationsPath  = "/org/freedesktop/Notifications"
	notificationsIface = "org.freedesktop.Notifications"

	appName = "micboard"
	icon    = "audio-input-microphone"
	summary = "Microphone"
)

// DBusNotifier shows desktop notifications through the freedesktop
// notification service. Each notification replaces the previous one.
type DBusNotifier struct {
	conn  *dbus.Conn
	sound string

	lock   sync.Mutex
	lastID uint32
}

// NewDBusNotifier uses conn, which must be connected to the session bus.
// sound is an optional freedesktop sound theme name played with each
// notification.
func NewDBusNotifier(conn *dbus.Conn, sound string) *DBusNotifier {
	return &DBusNotifier{conn: conn, sound: sound}
}

func hints(sound string) map[string]dbus.Variant {
	h := map[string]dbus.Variant{
		"category": dbus.MakeVariant("device"),
	}
	if sound == "" {
		h["suppress-sound"] = dbus.MakeVariant(true)
	} else {
		h["sound-name"] = dbus.MakeVariant(sound)
	}
	return h
}

func (n *DBusNotifier) Notify(ctx context.Context, message string) error {
	n.lock.Lock()
	defer n.lock.Unlock()

	obj := n.conn.Object(notificationsDest, notificationsPath)

	// Notify(app_name s, replaces_id u, app_icon s, summary s, body s,
	// actions as, hints a{sv}, expire_timeout i) -> id u
	var id uint32
	err := obj.CallWithContext(ctx, notificationsIface+".Notify", 0,
		appName,
		n.lastID,
		icon,
		summary,
		message,
		[]string{},
		hints(n.sound),
		int32(-1),
	).Store(&id)
	if err != nil {
		return fmt.Errorf("dbus notify: %w", err)
	}

	n.lastID = id
	return nil
}
