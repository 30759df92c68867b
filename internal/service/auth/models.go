package auth

type SignUpParams struct {
	Name     string
	Email    string
	Password string
}

type SignInParams struct {
	Email    string
	Password string
}

type UpdateProfileParams struct {
	UserId   string
	Name     string
	PhotoURL string
}

type User struct {
	Id       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	PhotoURL string `json:"photo_url"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}
