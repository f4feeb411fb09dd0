package email

import (
	"html/template"
	"time"
)

var funcs = template.FuncMap{
	"date": func(t time.Time) string { return t.Format("02/01/2006 15:04") },
}

var notificationTemplate = template.Must(template.New("notification").Funcs(funcs).Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Title}}</title>
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h2 style="color: #2563eb;">{{.Title}}</h2>
        <p>Hola {{.Name}},</p>
        <p>{{.Message}}</p>
        {{if .Link}}
        <div style="text-align: center; margin: 30px 0;">
            <a href="{{.Link}}" style="background-color: #2563eb; color: white; padding: 12px 30px; text-decoration: none; border-radius: 5px; display: inline-block;">Ver en {{.AppName}}</a>
        </div>
        {{end}}
        <hr style="border: none; border-top: 1px solid #eee; margin: 20px 0;">
        <p style="color: #999; font-size: 12px;">Este es un mensaje automático de {{.AppName}}. Puede desactivar estos avisos en sus preferencias de notificación.</p>
    </div>
</body>
</html>
`))

var reminderTemplate = template.Must(template.New("amendment_reminder").Funcs(funcs).Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Subsanaciones pendientes</title>
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h2 style="color: #2563eb;">Subsanaciones pendientes</h2>
        <p>Hola {{.Name}},</p>
        <p>El proyecto <strong>{{.ProjectTitle}}</strong> tiene documentos pendientes de subsanar:</p>
        <div style="background-color: #fff3cd; border-left: 4px solid #ffc107; padding: 15px; margin: 20px 0;">
            <ul style="margin: 0;">
            {{range .Items}}
                <li>{{.DocumentName}}: antes del {{date .Deadline}}</li>
            {{end}}
            </ul>
        </div>
        <p>Pasada la fecha límite la subsanación quedará caducada.</p>
        <div style="text-align: center; margin: 30px 0;">
            <a href="{{.Link}}" style="background-color: #2563eb; color: white; padding: 12px 30px; text-decoration: none; border-radius: 5px; display: inline-block;">Abrir proyecto</a>
        </div>
        <hr style="border: none; border-top: 1px solid #eee; margin: 20px 0;">
        <p style="color: #999; font-size: 12px;">Este es un mensaje automático de {{.AppName}}.</p>
    </div>
</body>
</html>
`))
