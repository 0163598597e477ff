package app

import (
	"context"

	"session-marketplace/internal/dashboard"
	"session-marketplace/internal/model"
)

// overview is the role-specific dashboard of the user it was fetched for.
type overview struct {
	UserID  int64
	Student *dashboard.StudentView
	Creator *dashboard.CreatorView
}

func (a *App) fetchOverview(ctx context.Context) (overview, error) {
	identity, ok := a.session.Identity()
	if !ok {
		return overview{}, model.ErrNotAuthenticated
	}

	if identity.Role == model.RoleCreator {
		dash, err := a.api.CreatorDashboard(ctx)
		if err != nil {
			return overview{}, err
		}
		view := dashboard.ForCreator(dash)
		return overview{UserID: identity.ID, Creator: &view}, nil
	}

	dash, err := a.api.UserDashboard(ctx)
	if err != nil {
		return overview{}, err
	}
	view := dashboard.ForStudent(dash)
	return overview{UserID: identity.ID, Student: &view}, nil
}

// ownOverview returns the dashboard of the signed-in user. With cached set a
// value already held by the view is used when it was fetched for that user.
func (a *App) ownOverview(ctx context.Context, cached bool) (overview, error) {
	identity, ok := a.session.Identity()
	if !ok {
		return overview{}, model.ErrNotAuthenticated
	}

	if cached {
		if view, loaded := a.overview.Current(); loaded && view.UserID == identity.ID {
			return view, nil
		}
	}

	view, err := a.overview.Refresh(ctx)
	if err != nil {
		return overview{}, err
	}
	if view.UserID != identity.ID {
		// applied by a fetch that started under another identity
		return a.fetchOverview(ctx)
	}
	return view, nil
}
