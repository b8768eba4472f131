package service

import (
	"fmt"
	"time"
)

const emailFooter = "This is an automated email. Please do not reply to it; your message would not be read.\n" +
	"This email has been sent to you because you have an account on the parking service."

const timestampLayout = "2006-01-02 15:04:05"

func cloningAlert(at time.Time, nodeID, uid string) string {
	return fmt.Sprintf("# Cloning detected!\nUTC time: `%s`\nParking (node id): `%s`\nUser (UID): `%s`",
		at.UTC().Format(timestampLayout), nodeID, uid)
}

func illegalParkingAlert(at time.Time, nodeID, position string) string {
	return fmt.Sprintf("# Illegal parking detected!\nUTC time: `%s`\nParking (node id): `%s`, location: `%s`\n\n"+
		"Details: someone parked on this parking spot but did not validate its badge (if they have one)",
		at.UTC().Format(timestampLayout), nodeID, position)
}

const suspendedSubject = "Parking service - account suspended after suspicious activity"

func suspendedEmail(username string, at time.Time) string {
	return fmt.Sprintf("Hello %s,\n\n"+
		"Suspicious activity has been detected at %s with your badge ID (badge cloning).\n"+
		"Your account has been suspended.\n"+
		"For more details and if you are not at the origin of this, please contact the parking service.\n\n%s",
		username, at.UTC().Format(timestampLayout), emailFooter)
}

const timeoutSubject = "Parking service - reservation timed out"

func timeoutEmail(username, position string) string {
	return fmt.Sprintf("Hello %s,\n\n"+
		"You reserved a parking spot (location: %s) earlier today.\n"+
		"As you did not come to park one hour after the reservation was made, the parking is not reserved anymore.\n\n"+
		"Thank you for your understanding.\n\n%s",
		username, position, emailFooter)
}

const reservationLostSubject = "Parking service - reservation cancelled"

func reservationLostEmail(username, position string) string {
	return fmt.Sprintf("Hello %s,\n\n"+
		"The parking spot you reserved (location: %s) has been flagged for an incident and is no longer available.\n"+
		"Your reservation has been cancelled, you can reserve another spot.\n\n"+
		"Thank you for your understanding.\n\n%s",
		username, position, emailFooter)
}
