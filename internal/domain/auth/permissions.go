package auth

const (
	PermWPSRead     = "wps.read"
	PermWPSWrite    = "wps.write"
	PermWPSSubmit   = "wps.submit"
	PermWPSExport   = "wps.export"
	PermWPSSettings = "wps.settings"
	PermAuditRead   = "audit.read"
)

const (
	RolePayrollOfficer = "payroll_officer"
	RolePayrollManager = "payroll_manager"
	RoleAuditor        = "auditor"
	RoleSystemAdmin    = "system_admin"
)

var DefaultPermissions = []string{
	PermWPSRead,
	PermWPSWrite,
	PermWPSSubmit,
	PermWPSExport,
	PermWPSSettings,
	PermAuditRead,
}

var RolePermissions = map[string][]string{
	RolePayrollOfficer: {
		PermWPSRead,
		PermWPSWrite,
	},
	RolePayrollManager: {
		PermWPSRead,
		PermWPSWrite,
		PermWPSSubmit,
		PermWPSExport,
		PermWPSSettings,
		PermAuditRead,
	},
	RoleAuditor: {
		PermWPSRead,
		PermAuditRead,
	},
	RoleSystemAdmin: {
		PermWPSRead,
		PermWPSSettings,
		PermAuditRead,
	},
}
