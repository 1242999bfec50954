package manifest

import "github.com/klubi/hostel/pkg/apis/v1alpha1"

// SampleRooms returns the starter room set written by `hostel init`: five
// doubles in Block A, three triples in Block B and two quads in Block C.
func SampleRooms() []*v1alpha1.Room {
	type row struct {
		name      string
		capacity  int
		floor     int
		building  string
		amenities []string
	}
	standard := []string{"WiFi", "AC", "Study Table"}
	rows := []row{
		{"A101", 2, 1, "Block A", standard},
		{"A102", 2, 1, "Block A", standard},
		{"A103", 2, 1, "Block A", standard},
		{"A201", 2, 2, "Block A", standard},
		{"A202", 2, 2, "Block A", standard},
		{"B101", 3, 1, "Block B", []string{"WiFi", "Fan", "Study Table"}},
		{"B102", 3, 1, "Block B", []string{"WiFi", "Fan", "Study Table"}},
		{"B201", 3, 2, "Block B", []string{"WiFi", "Fan", "Study Table"}},
		{"C101", 4, 1, "Block C", []string{"WiFi", "AC", "Study Table", "Balcony"}},
		{"C102", 4, 1, "Block C", []string{"WiFi", "AC", "Study Table", "Balcony"}},
	}

	rooms := make([]*v1alpha1.Room, 0, len(rows))
	for _, r := range rows {
		rooms = append(rooms, &v1alpha1.Room{
			TypeMeta: v1alpha1.TypeMeta{APIVersion: v1alpha1.APIVersion, Kind: v1alpha1.KindRoom},
			Metadata: v1alpha1.ObjectMeta{Name: r.name},
			Spec: v1alpha1.RoomSpec{
				Capacity:  r.capacity,
				Floor:     r.floor,
				Building:  r.building,
				Amenities: append([]string(nil), r.amenities...),
			},
		})
	}
	return rooms
}

// SampleStudent returns an example student with a full questionnaire, used
// as a template in the generated manifest.
func SampleStudent() *v1alpha1.Student {
	return &v1alpha1.Student{
		TypeMeta: v1alpha1.TypeMeta{APIVersion: v1alpha1.APIVersion, Kind: v1alpha1.KindStudent},
		Metadata: v1alpha1.ObjectMeta{Name: "s-1001"},
		Spec: v1alpha1.StudentSpec{
			FullName: "Asha Verma",
			Email:    "asha@example.edu",
			Course:   "Computer Science",
			Year:     2,
			Preferences: &v1alpha1.Preferences{
				Values: map[string]string{
					"sleep_time":             "23:00",
					"wake_time":              "07:00",
					"study_preference":       "individual",
					"noise_tolerance":        "low",
					"cleanliness_level":      "high",
					"social_preference":      "ambivert",
					"music_preference":       "instrumental",
					"visitor_frequency":      "rarely",
					"temperature_preference": "cool",
					"smoking_preference":     "no",
				},
				Interests: "chess, reading, badminton",
			},
		},
	}
}
