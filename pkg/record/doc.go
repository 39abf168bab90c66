// Package record defines FrameDB's persisted entities and their byte layouts.
//
// Every binary record is written field by field with the primitives from the
// codec package, in a fixed order, with no tags and no version field:
//
//	CatalogMetadata:          next_dataset_id:i32 next_job_id:i32
//	                          dataset_count:size {dataset_id:i32 name:string}*
//	                          {dataset_id:i32 job_id_count:size {job_id:i32}*}*
//	                          job_count:size {job_id:i32 name:string}*
//	DatasetDescriptor:        total_frames:i64 min/avg/max_frames:i32x3
//	                          min/avg/max_width:i32x3 min/avg/max_height:i32x3
//	                          video_count:size {path:string item_name:string}*
//	DatasetItemMetadata:      frames:i32 width:i32 height:i32 codec_type:i32
//	                          chroma_format:i32 metadata:bytes keyframe_count:size
//	                          positions:i64[n] timestamps:i64[n] byte_offsets:i64[n]
//	DatasetItemWebTimestamps: time_base_num:i32 time_base_den:i32 frame_count:size
//	                          pts:i64[n] dts:i64[n]
//
// JobDescriptor is the exception: it is a JSON document
//
//	{"dataset_name": "ds1", "videos": [{"path": "a.mp4", "intervals": [[0, 100]]}]}
//
// and every field is required when decoding.
//
// Each entity has a Serialize function that appends one record through an
// Appender (normally a *storage.WriteHandle) and a Deserialize function that
// reads it back from a codec.Source at a cursor, advancing the cursor past
// the record. MarshalBinary/UnmarshalBinary work on plain byte slices.
//
// Decoding never substitutes defaults: a record cut short anywhere yields an
// error matching codec.ErrCorruptData with the offset of the failing field.
package record
