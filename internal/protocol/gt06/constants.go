// Package gt06 implements the GT06 binary tracker protocol.
package gt06

// Protocol constants
const (
	startByte = 0x78
	endByte1  = 0x0D
	endByte2  = 0x0A

	// Message types
	loginMsg        = 0x01
	locationMsg     = 0x12
	heartbeatMsg    = 0x13
	commandReplyMsg = 0x15
	alarmMsg        = 0x16
	commandMsg      = 0x80

	// Alarm types
	sosAlarm        = 0x01
	powerCutAlarm   = 0x02
	vibrationAlarm  = 0x03
	fenceInAlarm    = 0x04
	fenceOutAlarm   = 0x05
	lowBatteryAlarm = 0x06
	overspeedAlarm  = 0x07

	// Frame overhead: start(2) + len(1) + serial(2) + crc(2) + stop(2), plus type(1).
	frameOverhead = 10
	// len byte counts type + body + serial + crc.
	lenOverhead = 5

	gpsBlockLength = 18
	// GPS(18) + LBS(9) + terminal info(1) + voltage(1) + gsm(1); the alarm
	// code follows.
	fullAlarmCodeOffset = 30

	// Latitude/longitude are transmitted as minutes * 30000.
	coordScale = 30000.0 * 60.0

	courseMask     = 0x03FF
	flagNorth      = 0x0400
	flagWest       = 0x0800
	flagPositioned = 0x1000
)
