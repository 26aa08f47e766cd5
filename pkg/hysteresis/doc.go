// Package hysteresis implements the two-point ON/OFF control used by
// devices that are automatic but not pid_enabled (spec §4.6): dehumidifiers
// and humidifiers driven off VPD, and fans used as simple ON/OFF cooling
// without PID. It is the non-PID sibling of pkg/pid, selected by the same
// DeviceType dispatch the control engine uses to choose between the two
// (spec §9 REDESIGN FLAGS: "PID vs. hysteresis selection is a property of
// the variant plus a boolean").
package hysteresis
