package rbac

const (
	RoleAdmin       = "admin"
	RoleInstitution = "institutional-admin"
	RoleExamAdmin   = "exam-admin"
	RoleSupporter   = "exam-supporter"
)

const (
	PermQuizSearch   = "lms:search"
	PermExamImport   = "exam:import"
	PermExamView     = "exam:view"
	PermRestrict     = "lms:restrict"
	PermTest         = "lms:test"
	PermSetupWrite   = "lms:setup-write"
	PermActivityView = "activity:view"
)

var RolePermissions = map[string][]string{
	RoleSupporter: {
		PermQuizSearch,
		PermExamView,
	},
	RoleExamAdmin: {
		PermQuizSearch,
		"exam:*",
		PermRestrict,
		PermTest,
	},
	RoleInstitution: {
		"lms:*",
		"exam:*",
		PermActivityView,
	},
	RoleAdmin: {
		"*", // everything
	},
}
