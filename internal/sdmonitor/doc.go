// Package sdmonitor watches for storage cards being attached.
//
// It listens for udev block partition add events over netlink, waits for
// the new partition to show up in the mount table and hands the mount point
// to a handler, which normally runs an installed-title scan.
package sdmonitor
