package model

type Role string

const (
	RoleDriver  Role = "driver"
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

// Channel returns the role-scoped broadcast channel name.
func (r Role) Channel() string {
	switch r {
	case RoleDriver:
		return "drivers"
	case RoleStudent:
		return "students"
	case RoleAdmin:
		return "admins"
	}
	return ""
}

func (r Role) Valid() bool {
	return r.Channel() != ""
}

type User struct {
	ID         string `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	Role       Role   `json:"role" yaml:"role"`
	IsApproved bool   `json:"isApproved" yaml:"is_approved"`
	IsActive   bool   `json:"isActive" yaml:"is_active"`
}

// Trip is the scheduled run a live position belongs to.
type Trip struct {
	ID        string `json:"id" yaml:"id"`
	DriverID  string `json:"driverId" yaml:"driver_id"`
	BusNumber string `json:"busNumber" yaml:"bus_number"`
	RouteName string `json:"routeName" yaml:"route_name"`
	IsActive  bool   `json:"isActive" yaml:"is_active"`
}

// Identity is the authenticated principal behind a connection or request.
type Identity struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Role   Role   `json:"role"`
}

const (
	ChannelDrivers  = "drivers"
	ChannelStudents = "students"
	ChannelAdmins   = "admins"
)

// TripChannel names the per-trip subscription channel.
func TripChannel(tripID string) string {
	return "bus-" + tripID
}
