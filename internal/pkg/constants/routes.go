package constants

// Static route constants
const (
	HomeRoute          = "/"
	PaymentResultRoute = "/payment/result"
)
